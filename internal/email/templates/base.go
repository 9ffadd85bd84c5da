package templates

import (
	_ "embed"
)

//go:embed referral_received.html
var referralReceivedHTML string

//go:embed sync_failed.html
var syncFailedHTML string
