// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/Enovale/matrix-url-previewer-bot/lib/ref"
)

// BuildSyncFilter constructs an inline JSON filter for /sync that
// restricts timeline events to the given types and strips everything
// the bot does not consume: presence, account data, ephemeral events
// (typing, receipts), and room state other than what arrives in the
// timeline. Room members are lazy-loaded, which speeds up the initial
// sync considerably for accounts joined to many rooms.
func BuildSyncFilter(timelineTypes []ref.EventType) string {
	emptyTypes := []string{}

	filter := map[string]any{
		"room": map[string]any{
			"state": map[string]any{
				"lazy_load_members": true,
			},
			"timeline": map[string]any{
				"types": timelineTypes,
				"limit": 100,
			},
			"ephemeral": map[string]any{
				"types": emptyTypes,
			},
			"account_data": map[string]any{
				"types": emptyTypes,
			},
		},
		"presence": map[string]any{
			"types": emptyTypes,
		},
		"account_data": map[string]any{
			"types": emptyTypes,
		},
	}

	data, err := json.Marshal(filter)
	if err != nil {
		panic("building sync filter: " + err.Error())
	}
	return string(data)
}
