package domain

import "time"

// User es un visitante anónimo identificado por el hash de su dirección.
type User struct {
	ID            int64     `json:"id"`
	IPHash        string    `json:"-"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	TotalMessages int64     `json:"total_messages"`
}
