package model

import "time"

// CookieRecord はアイデンティティごとに保管されるブラウザCookieを表す。
// (email, domain) ごとに複数レコードが存在でき、名前の一意性は強制しない。
type CookieRecord struct {
	ID          string
	Email       string
	CookieName  string
	CookieValue string
	Domain      string
	Path        string
	ExpiresAt   *time.Time
	Secure      bool
	HTTPOnly    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
