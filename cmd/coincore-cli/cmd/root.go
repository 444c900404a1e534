package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "coincore-cli",
	Short: "交易引擎命令行工具",
	Long: `coincore 服务的命令行客户端。
可以查看账户列表、可选交易目标，并驱动一笔完整的交易流程 (创建 -> 金额 -> 校验 -> 执行)。`,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "coincore 服务地址")
}
