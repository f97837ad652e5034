package domain

import (
	"time"
)

const (
	// TargetWidth is the fixed width of every composite image.
	TargetWidth = 600

	MainCaption = "LGTM"
	SubCaption  = "Looks Good To Me"

	MIMEWebP = "image/webp"
	MIMEPNG  = "image/png"
	MIMEJPEG = "image/jpeg"

	DefaultQuality    = 0.8
	DefaultDailyLimit = 5
	DefaultMaxUpload  = 5 * 1024 * 1024
	DefaultAdminTTL   = 30 * time.Minute
)

// SourceImage is what the user supplied: raw bytes or a remote URL.
type SourceImage struct {
	Data []byte
	URL  string
}

// RenderSettings controls caption drawing. It is a value type and is never
// mutated by the renderer.
type RenderSettings struct {
	ShowMainText      bool    `json:"showMainText"`
	ShowSubtext       bool    `json:"showSubtext"`
	ShowBackground    bool    `json:"showBackground"`
	MainFont          string  `json:"mainFont"`
	SubFont           string  `json:"subFont"`
	TextColor         string  `json:"textColor"`
	BackgroundColor   string  `json:"backgroundColor"`
	BackgroundOpacity float64 `json:"backgroundOpacity"`
}

func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		ShowMainText:      true,
		ShowSubtext:       true,
		ShowBackground:    true,
		MainFont:          "sans-bold",
		SubFont:           "sans",
		TextColor:         "#ffffff",
		BackgroundColor:   "#000000",
		BackgroundOpacity: 0.6,
	}
}

type EncodedPayload struct {
	Data        []byte
	ContentType string
	Extension   string
	Width       int
	Height      int
}

// UploadQuotaRecord is one ledger row: uploads by an identity on a calendar day.
type UploadQuotaRecord struct {
	Identity string `json:"identity"`
	Day      string `json:"day"`
	Count    int    `json:"count"`
}

type QuotaStatus struct {
	Count        int  `json:"count"`
	Limit        int  `json:"limit"`
	Remaining    int  `json:"remaining"`
	LimitReached bool `json:"limitReached"`
}

// Caller identifies who is uploading and which calendar they live in.
type Caller struct {
	Identity string
	Location *time.Location
}

// Day returns the caller-local calendar day of t as YYYY-MM-DD.
func (c Caller) Day(t time.Time) string {
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}

// StoredObject is an entry of the object store listing.
type StoredObject struct {
	Name      string
	Size      int64
	CreatedAt time.Time
}

type GalleryItem struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"createdAt"`
}

type UploadRequest struct {
	Source     SourceImage
	AddCaption bool
	Settings   RenderSettings
	MIMEType   string
	Quality    float64
}

type UploadResult struct {
	URL         string `json:"url"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Count       int    `json:"count"`
	Remaining   int    `json:"remaining"`
}

type Verdict struct {
	Appropriate bool
	Reason      string
}

// AdminSession is the elevated-privilege flag with its absolute expiry.
type AdminSession struct {
	Admin     bool      `json:"admin"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the session still grants privileges at now.
func (s *AdminSession) Active(now time.Time) bool {
	return s != nil && s.Admin && now.Before(s.ExpiresAt)
}
