package handler

import (
	"coincore/internal/coincore"
	"coincore/internal/handler/response"
	"coincore/pkg/errno"

	"github.com/gin-gonic/gin"
)

// AccountsHandler 账户发现接口
type AccountsHandler struct {
	Core *coincore.Coincore
}

func NewAccountsHandler(core *coincore.Coincore) *AccountsHandler {
	return &AccountsHandler{Core: core}
}

// accountView 账户的对外视图
type accountView struct {
	Label    string   `json:"label"`
	Asset    string   `json:"asset"`
	IsFiat   bool     `json:"is_fiat"`
	Actions  []string `json:"actions"`
	Archived bool     `json:"archived"`
}

func toView(acc coincore.BlockchainAccount) accountView {
	actions := make([]string, 0, len(acc.Actions()))
	for _, a := range acc.Actions() {
		actions = append(actions, string(a))
	}
	return accountView{
		Label:    acc.Label(),
		Asset:    acc.Currency().Code,
		IsFiat:   acc.Currency().IsFiat,
		Actions:  actions,
		Archived: acc.IsArchived(),
	}
}

// List 全部账户，可用 ?action= 过滤
func (h *AccountsHandler) List(c *gin.Context) {
	var (
		accounts []coincore.BlockchainAccount
		err      error
	)
	if action := c.Query("action"); action != "" {
		accounts, err = h.Core.AllWalletsWithActions(c.Request.Context(), coincore.AssetAction(action))
	} else {
		accounts, err = h.Core.AllWallets(c.Request.Context())
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, toView(acc))
	}
	response.Success(c, views)
}

// Targets 给定来源账户和动作下的合法目标
func (h *AccountsHandler) Targets(c *gin.Context) {
	assetCode := c.Query("asset")
	address := c.Query("address")
	action := coincore.AssetAction(c.Query("action"))
	if assetCode == "" || address == "" || action == "" {
		response.Error(c, errno.ErrBind)
		return
	}

	source, err := h.findSource(c, assetCode, address)
	if err != nil {
		response.Error(c, err)
		return
	}

	targets, err := h.Core.TransactionTargets(c.Request.Context(), source, action)
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]accountView, 0, len(targets))
	for _, t := range targets {
		views = append(views, toView(t))
	}
	response.Success(c, views)
}

func (h *AccountsHandler) findSource(c *gin.Context, assetCode, address string) (coincore.BlockchainAccount, error) {
	asset, ok := h.Core.Asset(assetCode)
	if !ok {
		return nil, errno.ErrAccountNotFound
	}
	return h.Core.FindAccountByAddress(c.Request.Context(), asset.Currency(), address)
}
