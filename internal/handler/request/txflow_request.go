package request

type CreateFlowRequest struct {
	SourceAsset   string `json:"source_asset" binding:"required"`
	SourceAddress string `json:"source_address" binding:"required"`
	Target        string `json:"target" binding:"required"`
	Action        string `json:"action" binding:"required"`
}

type UpdateAmountRequest struct {
	Asset string `json:"asset" binding:"required"`
	// Minor 最小单位十进制字符串 (satoshi / wei / cent)
	Minor string `json:"minor" binding:"required"`
}

type UpdateFeeLevelRequest struct {
	Level string `json:"level" binding:"required"` // NONE, REGULAR, PRIORITY, CUSTOM
	// CustomAmount 仅 CUSTOM 档使用 (最小单位费率)
	CustomAmount int64 `json:"custom_amount"`
}

type AcceptOptionRequest struct {
	Kind     int  `json:"kind"`
	Accepted bool `json:"accepted"`
}

type ExecuteRequest struct {
	SecondPassword string `json:"second_password"`
}
