package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version 当前版本号
const Version = "0.1.0"

var cfgFile string

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:     "neuroassess",
	Short:   "神经评估任务网关",
	Long:    `neuroassess 在流程引擎之前提供按用户/角色过滤的 DN4 评估任务发现与完成接口。`,
	Version: Version,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yml", "配置文件路径")

	// 禁用默认的 completion 命令
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serveCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "打印版本号",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "neuroassess", Version)
	},
}
