package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// snapshotView 流程各阶段的快照
type snapshotView struct {
	FlowID          string                   `json:"flow_id"`
	ValidationState string                   `json:"validation_state"`
	Amount          string                   `json:"amount"`
	Available       string                   `json:"available"`
	Fee             string                   `json:"fee"`
	FeeLevel        string                   `json:"fee_level"`
	MinLimit        string                   `json:"min_limit"`
	MaxLimit        string                   `json:"max_limit"`
	Confirmations   []map[string]interface{} `json:"confirmations"`
}

type executionView struct {
	TxID             string `json:"tx_id"`
	Amount           string `json:"amount"`
	NeedsApproval    bool   `json:"needs_approval"`
	AuthorisationURL string `json:"authorisation_url"`
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "发起并执行一笔交易流程",
	Long: `驱动一笔完整的交易流程: 创建 -> 设置金额 -> 构建确认列表 -> 校验 -> 执行。
任一阶段失败即中止并保留服务端流程，方便排查。`,
	Run: func(cmd *cobra.Command, args []string) {
		server, _ := cmd.Flags().GetString("server")
		asset, _ := cmd.Flags().GetString("asset")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		action, _ := cmd.Flags().GetString("action")
		minor, _ := cmd.Flags().GetString("amount")
		feeLevel, _ := cmd.Flags().GetString("fee-level")
		password, _ := cmd.Flags().GetString("password")
		yes, _ := cmd.Flags().GetBool("yes")

		// 1. 创建流程
		var snap snapshotView
		err := call(server, http.MethodPost, "/api/v1/flows", map[string]string{
			"source_asset":   asset,
			"source_address": from,
			"target":         to,
			"action":         action,
		}, &snap)
		if err != nil {
			fail("创建流程失败", err)
		}
		flowID := snap.FlowID
		fmt.Printf("流程已创建: %s (可用余额 %s)\n", flowID, snap.Available)

		// 2. 设置金额
		err = call(server, http.MethodPut, "/api/v1/flows/"+flowID+"/amount", map[string]string{
			"asset": asset,
			"minor": minor,
		}, &snap)
		if err != nil {
			fail("设置金额失败", err)
		}
		fmt.Printf("金额: %s, 手续费: %s, 状态: %s\n", snap.Amount, snap.Fee, snap.ValidationState)

		// 3. 费率档位 (可选)
		if feeLevel != "" {
			err = call(server, http.MethodPut, "/api/v1/flows/"+flowID+"/fee", map[string]interface{}{
				"level": feeLevel,
			}, &snap)
			if err != nil {
				fail("设置费率失败", err)
			}
			fmt.Printf("费率档位: %s, 手续费: %s\n", snap.FeeLevel, snap.Fee)
		}

		// 4. 确认列表
		err = call(server, http.MethodPost, "/api/v1/flows/"+flowID+"/confirmations", nil, &snap)
		if err != nil {
			fail("构建确认列表失败", err)
		}
		fmt.Println("---- 请确认 ----")
		for _, entry := range snap.Confirmations {
			fmt.Printf("  %v\n", entry)
		}
		if !yes {
			fmt.Print("继续执行? [y/N] ")
			var answer string
			fmt.Scanln(&answer)
			if answer != "y" && answer != "Y" {
				fmt.Println("已取消 (流程保留在服务端)")
				return
			}
		}

		// 5. 校验
		err = call(server, http.MethodPost, "/api/v1/flows/"+flowID+"/validate", nil, &snap)
		if err != nil {
			fail("校验失败", err)
		}
		if snap.ValidationState != "CAN_EXECUTE" {
			fmt.Printf("❌ 校验未通过: %s\n", snap.ValidationState)
			os.Exit(1)
		}

		// 6. 执行
		var result executionView
		err = call(server, http.MethodPost, "/api/v1/flows/"+flowID+"/execute", map[string]string{
			"second_password": password,
		}, &result)
		if err != nil {
			fail("执行失败", err)
		}

		if result.NeedsApproval {
			fmt.Printf("⏳ 待银行授权: %s\n", result.AuthorisationURL)
			return
		}
		fmt.Printf("✅ 执行成功! TxID: %s, 金额: %s\n", result.TxID, result.Amount)
	},
}

func fail(stage string, err error) {
	fmt.Printf("%s: %v\n", stage, err)
	os.Exit(1)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("asset", "BTC", "来源资产代码")
	sendCmd.Flags().String("from", "", "来源账户地址或标签")
	sendCmd.Flags().String("to", "", "目标地址或账户标签")
	sendCmd.Flags().String("action", "send", "动作 (send, sell, fiat_deposit, interest_deposit)")
	sendCmd.Flags().String("amount", "0", "金额 (最小单位)")
	sendCmd.Flags().String("fee-level", "", "费率档位 (REGULAR, PRIORITY, CUSTOM)")
	sendCmd.Flags().String("password", "", "二级密码 (如钱包已设置)")
	sendCmd.Flags().BoolP("yes", "y", false, "跳过交互确认")
	sendCmd.MarkFlagRequired("from")
	sendCmd.MarkFlagRequired("to")
}
