package app

import "testing"

func TestMenuEvent(t *testing.T) {
	cases := map[string]string{
		MenuNewConnection:      "menu:new-connection",
		MenuOpenQuery:          "menu:open-query",
		MenuSaveQuery:          "menu:save-query",
		MenuExportData:         "menu:export-data",
		MenuConnectDatabase:    "menu:connect-database",
		MenuDisconnectDatabase: "menu:disconnect-database",
		MenuRefreshSchema:      "menu:refresh-schema",
		MenuAbout:              "menu:about",
	}
	for cmd, want := range cases {
		if got := MenuEvent(cmd); got != want {
			t.Errorf("MenuEvent(%q) = %q, want %q", cmd, got, want)
		}
	}
}
