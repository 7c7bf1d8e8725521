package models

import (
	"time"

	"gorm.io/datatypes"
)

// CallbackEvent records every webhook delivery as received, duplicates
// included.
type CallbackEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	CheckoutRef string         `gorm:"column:checkout_ref;index" json:"checkout_ref"`
	ResultCode  string         `gorm:"column:result_code;size:32" json:"result_code"`
	SessionID   *string        `gorm:"column:session_id;index" json:"session_id"`
	Applied     bool           `gorm:"column:applied" json:"applied"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	ReceivedAt  time.Time      `gorm:"column:received_at;index" json:"received_at"`
}
