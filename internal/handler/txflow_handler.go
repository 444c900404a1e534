package handler

import (
	"coincore/internal/coincore"
	"coincore/internal/handler/request"
	"coincore/internal/handler/response"
	"coincore/internal/service"
	"coincore/pkg/errno"

	"github.com/gin-gonic/gin"
)

// TxFlowHandler 交易流程的 HTTP 接口
// 流程: create -> amount -> fee -> confirmations -> validate -> execute
type TxFlowHandler struct {
	Flows *service.TxFlowService
}

func NewTxFlowHandler(flows *service.TxFlowService) *TxFlowHandler {
	return &TxFlowHandler{Flows: flows}
}

// Create 建立一个新的交易流程
func (h *TxFlowHandler) Create(c *gin.Context) {
	var req request.CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	snap, err := h.Flows.CreateFlow(c.Request.Context(),
		req.SourceAsset, req.SourceAddress, req.Target, coincore.AssetAction(req.Action))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// UpdateAmount 更新金额
func (h *TxFlowHandler) UpdateAmount(c *gin.Context) {
	var req request.UpdateAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	snap, err := h.Flows.UpdateAmount(c.Request.Context(), c.Param("id"), req.Asset, req.Minor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// UpdateFeeLevel 切换费档
func (h *TxFlowHandler) UpdateFeeLevel(c *gin.Context) {
	var req request.UpdateFeeLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	level, ok := parseFeeLevel(req.Level)
	if !ok {
		response.Error(c, errno.ErrFeeLevelNotOffered)
		return
	}

	snap, err := h.Flows.UpdateFeeLevel(c.Request.Context(), c.Param("id"), level, req.CustomAmount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

func parseFeeLevel(s string) (coincore.FeeLevel, bool) {
	switch s {
	case "NONE":
		return coincore.FeeLevelNone, true
	case "REGULAR":
		return coincore.FeeLevelRegular, true
	case "PRIORITY":
		return coincore.FeeLevelPriority, true
	case "CUSTOM":
		return coincore.FeeLevelCustom, true
	default:
		return coincore.FeeLevelNone, false
	}
}

// Confirmations 生成确认列表
func (h *TxFlowHandler) Confirmations(c *gin.Context) {
	snap, err := h.Flows.BuildConfirmations(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// AcceptOption 勾选/取消布尔确认项
func (h *TxFlowHandler) AcceptOption(c *gin.Context) {
	var req request.AcceptOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	snap, err := h.Flows.AcceptOption(c.Request.Context(), c.Param("id"),
		coincore.TxConfirmation(req.Kind), req.Accepted)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// Validate 完整校验
func (h *TxFlowHandler) Validate(c *gin.Context) {
	snap, err := h.Flows.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

// Execute 执行交易
func (h *TxFlowHandler) Execute(c *gin.Context) {
	var req request.ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind)
		return
	}

	view, err := h.Flows.Execute(c.Request.Context(), c.Param("id"), req.SecondPassword)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, view)
}

// Close 放弃流程
func (h *TxFlowHandler) Close(c *gin.Context) {
	if err := h.Flows.CloseFlow(c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
