//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	reportDir = "./reports"
	distDir   = "./dist"
)

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("marketcache 构建系统")
	fmt.Println("====================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build        - 构建 cacheadmin")
	fmt.Println("  mage test         - 运行所有测试")
	fmt.Println("  mage testRace     - 开启竞态检测运行测试")
	fmt.Println("  mage coverage     - 生成测试覆盖率报告")
	fmt.Println("  mage lint         - 运行代码检查")
	fmt.Println("  mage clean        - 清理构建产物")
	fmt.Println("  mage docker:env   - 启动本地 Redis 与 InfluxDB")
	fmt.Println("  mage docker:down  - 停止本地依赖")
}

// Build 构建 cacheadmin
func Build() error {
	mg.Deps(Clean)

	fmt.Println("📦 构建 cacheadmin...")
	output := filepath.Join(distDir, "cacheadmin")
	if runtime.GOOS == "windows" {
		output += ".exe"
	}

	cmd := exec.Command("go", "build", "-o", output, "./cmd/cacheadmin")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("构建 cacheadmin 失败: %v\n输出: %s", err, string(out))
	}

	if info, err := os.Stat(output); err == nil {
		fmt.Printf("   ✅ cacheadmin: %d MB\n", info.Size()/1024/1024)
	}
	return nil
}

// Test 运行所有测试
func Test() error {
	fmt.Println("🧪 运行测试...")
	return goTest("./...", "-timeout=5m")
}

// TestRace 开启竞态检测运行测试，缓存与维护循环的并发路径需要它
func TestRace() error {
	fmt.Println("🏁 运行竞态检测...")
	return goTest("./...", "-race", "-timeout=10m")
}

func goTest(args ...string) error {
	cmd := exec.Command("go", append([]string{"test"}, args...)...)
	cmd.Env = os.Environ()

	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "[no test files]") &&
			!strings.Contains(string(output), "FAIL") &&
			!strings.Contains(string(output), "build failed") {
			fmt.Println("✅ 测试通过! (部分包没有测试文件)")
			return nil
		}
		fmt.Printf("测试失败输出:\n%s\n", string(output))
		return fmt.Errorf("测试失败: %v", err)
	}
	fmt.Println("✅ 测试通过!")
	return nil
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	fmt.Println("📈 生成测试覆盖率报告...")
	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}

	profile := filepath.Join(reportDir, "coverage.out")
	cmd := exec.Command("go", "test", "./pkg/...", "-coverprofile="+profile, "-covermode=atomic")
	if output, err := cmd.CombinedOutput(); err != nil {
		fmt.Printf("测试输出:\n%s\n", string(output))
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}

	html := filepath.Join(reportDir, "coverage.html")
	if err := sh.Run("go", "tool", "cover", "-html="+profile, "-o", html); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func="+profile); err != nil {
		return fmt.Errorf("显示覆盖率失败: %v", err)
	}

	fmt.Println("✅ 覆盖率报告生成完成!")
	fmt.Println("   详细报告: file://" + getAbsolutePath(html))
	return nil
}

// Lint 检查格式并运行 go vet
func Lint() error {
	fmt.Println("🔍 运行代码检查...")

	output, err := exec.Command("gofmt", "-l", "./cmd", "./pkg").CombinedOutput()
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if files := strings.TrimSpace(string(output)); files != "" {
		fmt.Printf("以下文件需要格式化:\n%s\n", files)
		return fmt.Errorf("代码格式检查未通过")
	}

	if err := sh.RunV("go", "vet", "./..."); err != nil {
		return fmt.Errorf("go vet 未通过: %v", err)
	}

	fmt.Println("✅ 代码检查通过!")
	return nil
}

// Clean 清理构建产物
func Clean() error {
	fmt.Println("🧹 清理构建产物...")

	if err := os.MkdirAll(distDir, 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}
	files, err := filepath.Glob(filepath.Join(distDir, "*"))
	if err != nil {
		return fmt.Errorf("查找文件失败: %v", err)
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}

	if err := os.RemoveAll(reportDir); err != nil {
		fmt.Printf("警告: 清理报告目录失败: %v\n", err)
	}

	fmt.Println("✅ 清理完成!")
	return nil
}

type Docker mg.Namespace

// Env 启动本地 Redis 与 InfluxDB
func (Docker) Env() error {
	fmt.Println("🚀 启动本地依赖 (redis, influxdb)...")
	if err := sh.RunV("docker", "run", "-d", "--rm", "--name", "marketcache-redis", "-p", "6379:6379", "redis:7-alpine"); err != nil {
		return err
	}
	return sh.RunV("docker", "run", "-d", "--rm", "--name", "marketcache-influxdb", "-p", "8086:8086",
		"-e", "DOCKER_INFLUXDB_INIT_MODE=setup",
		"-e", "DOCKER_INFLUXDB_INIT_USERNAME=marketcache",
		"-e", "DOCKER_INFLUXDB_INIT_PASSWORD=marketcache-dev",
		"-e", "DOCKER_INFLUXDB_INIT_ORG=marketcache",
		"-e", "DOCKER_INFLUXDB_INIT_BUCKET=cache_stats",
		"influxdb:2.7")
}

// Down 停止本地依赖
func (Docker) Down() error {
	fmt.Println("🛑 停止本地依赖...")
	return sh.RunV("docker", "stop", "marketcache-redis", "marketcache-influxdb")
}

func getAbsolutePath(relativePath string) string {
	absPath, err := filepath.Abs(relativePath)
	if err != nil {
		return relativePath
	}
	return absPath
}
