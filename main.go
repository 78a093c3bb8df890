package main

import (
	"embed"
	"os"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"

	dbaiApp "dbai/internal/app"
	"dbai/internal/cli"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// Any argument selects the headless CLI; the desktop app takes none.
	if len(os.Args) > 1 {
		if err := cli.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	app := dbaiApp.New(os.Getenv("DBAI_CONFIG"))

	err := wails.Run(&options.App{
		Title:     "dbai",
		Width:     1400,
		Height:    900,
		MinWidth:  1200,
		MinHeight: 800,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		BackgroundColour: &options.RGBA{R: 10, G: 10, B: 10, A: 1},
		Menu:             app.Menu(),
		OnStartup:        app.Startup,
		OnShutdown:       app.Shutdown,
		Bind: []interface{}{
			app,
		},
		Mac: &mac.Options{
			TitleBar: &mac.TitleBar{
				TitlebarAppearsTransparent: true,
				HideTitle:                  true,
				HideTitleBar:               false,
				FullSizeContent:            true,
				UseToolbar:                 true,
				HideToolbarSeparator:       true,
			},
			WebviewIsTransparent: false,
			WindowIsTranslucent:  false,
			About: &mac.AboutInfo{
				Title:   "dbai",
				Message: "Database client for MongoDB, PostgreSQL, MySQL, Redis, SQLite and DuckDB",
			},
		},
	})

	if err != nil {
		println("Error:", err.Error())
	}
}
