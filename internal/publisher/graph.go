package publisher

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bachasia/schedy-sub001/internal/models"
)

type graphErrorBody struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

// classifyGraphError maps a Meta Graph API error response (shared by the
// facebook and instagram endpoints) into one ErrorKind.
// Code reference: 190 = invalid/expired token, 4/17/32/613 = throttling,
// 368 = blocked for policy/spam, 10 and 200-299 = permission errors,
// 2207xxx subcodes = media ingest failures.
func classifyGraphError(platform models.Platform, statusCode int, body []byte) *Error {
	var parsed graphErrorBody
	_ = json.Unmarshal(body, &parsed)

	ge := parsed.Error
	message := ge.Message
	if message == "" {
		message = fmt.Sprintf("graph api status %d", statusCode)
	}

	kind := KindUnknown
	switch {
	case ge.Code == 190 || statusCode == http.StatusUnauthorized:
		kind = KindTokenExpired
	case ge.Code == 4 || ge.Code == 17 || ge.Code == 32 || ge.Code == 613 || statusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case ge.Code == 368:
		kind = KindSpamOrQuotaRisk
	case ge.Code == 10 || (ge.Code >= 200 && ge.Code <= 299) || statusCode == http.StatusForbidden:
		kind = KindPermissionDenied
	case ge.ErrorSubcode >= 2207000 && ge.ErrorSubcode < 2208000:
		kind = KindInvalidMedia
	}

	return NewError(platform, kind, message, nil)
}
