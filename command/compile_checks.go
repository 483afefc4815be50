package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[FulfillCheckoutMessage] = (*FulfillCheckoutCommand)(nil)
	_ gocmd.Commander[AdminIssueMessage]      = (*AdminIssueCommand)(nil)
)
