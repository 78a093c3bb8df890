package app

import (
	"runtime"

	"github.com/wailsapp/wails/v2/pkg/menu"
	"github.com/wailsapp/wails/v2/pkg/menu/keys"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// Menu commands are forwarded to the frontend as "menu:<command>" events.
const (
	MenuNewConnection      = "new-connection"
	MenuOpenQuery          = "open-query"
	MenuSaveQuery          = "save-query"
	MenuExportData         = "export-data"
	MenuConnectDatabase    = "connect-database"
	MenuDisconnectDatabase = "disconnect-database"
	MenuRefreshSchema      = "refresh-schema"
	MenuAbout              = "about"
)

// MenuEvent is the event name a menu command is emitted under.
func MenuEvent(command string) string { return "menu:" + command }

func (a *App) menuItem(command string) menu.Callback {
	return func(*menu.CallbackData) {
		a.Emit(a.ctx, MenuEvent(command), nil)
	}
}

// Menu builds the application menu bar.
func (a *App) Menu() *menu.Menu {
	m := menu.NewMenu()
	if runtime.GOOS == "darwin" {
		m.Append(menu.AppMenu())
	}

	file := m.AddSubmenu("File")
	file.AddText("New Connection", keys.CmdOrCtrl("n"), a.menuItem(MenuNewConnection))
	file.AddSeparator()
	file.AddText("Open Query", keys.CmdOrCtrl("o"), a.menuItem(MenuOpenQuery))
	file.AddText("Save Query", keys.CmdOrCtrl("s"), a.menuItem(MenuSaveQuery))
	file.AddSeparator()
	file.AddText("Export Data", keys.Combo("e", keys.CmdOrCtrlKey, keys.ShiftKey), a.menuItem(MenuExportData))
	if runtime.GOOS != "darwin" {
		file.AddSeparator()
		file.AddText("Quit", keys.CmdOrCtrl("q"), func(*menu.CallbackData) {
			wailsRuntime.Quit(a.ctx)
		})
	}

	// macOS needs an Edit menu for Cmd+C/V/X/A to reach the WebView
	m.Append(menu.EditMenu())

	database := m.AddSubmenu("Database")
	database.AddText("Connect", keys.Combo("c", keys.CmdOrCtrlKey, keys.ShiftKey), a.menuItem(MenuConnectDatabase))
	database.AddText("Disconnect", keys.Combo("d", keys.CmdOrCtrlKey, keys.ShiftKey), a.menuItem(MenuDisconnectDatabase))
	database.AddSeparator()
	database.AddText("Refresh Schema", keys.CmdOrCtrl("r"), a.menuItem(MenuRefreshSchema))

	help := m.AddSubmenu("Help")
	help.AddText("About dbai", nil, a.menuItem(MenuAbout))
	return m
}
