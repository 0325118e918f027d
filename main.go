// @title Suma 后端 API
// @version 1.0
// @description Suma AI 课程与抽认卡生成服务。
// @termsOfService http://swagger.io/terms/

// @contact.name API支持
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"fmt"
	"log"
	"os"
	"suma_backend/internal/app"
	"suma_backend/internal/config"

	"github.com/spf13/cobra"
)

var (
	configDir    string
	forceMigrate bool
	workerOnce   bool
)

var rootCmd = &cobra.Command{
	Use:   "suma",
	Short: "Suma 课程与抽认卡生成服务",
	Long: `Suma 根据一句主题生成分级课程，并从文件或网页生成抽认卡。

默认命令启动 HTTP 服务和生成任务 worker。`,
	Version: "1.0.0",
	RunE:    runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务和生成 worker",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "只执行数据库迁移，完成后退出",
	RunE:  runMigrate,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "只运行生成任务 worker",
	Long: `只运行生成任务 worker，不监听 HTTP 端口。

加上 --once 时只处理一个可运行的任务后退出。`,
	RunE: runWorker,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "configs", "配置文件所在目录")
	rootCmd.PersistentFlags().BoolVar(&forceMigrate, "migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "处理一个任务后退出")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(workerCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ForceMigrate = forceMigrate
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app.NewApp(cfg).Run()
	return nil
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.ForceMigrate = true
	cfg.MigrateOnly = true

	app.NewApp(cfg)
	log.Println("数据库迁移完成，退出程序")
	return nil
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return app.NewApp(cfg).RunWorker(workerOnce)
}
