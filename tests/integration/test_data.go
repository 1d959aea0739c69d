package integration

import (
	"fmt"
	"time"
)

// TestAccount generates unique test account credentials using a timestamp
func TestAccount(suffix string) (username, password string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("acct-%d-%s", ts, suffix)
	password = "TestPassword123!"
	return
}
