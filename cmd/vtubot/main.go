// Command vtubot runs the wallet bot: WhatsApp webhook, Telegram bot, admin API and jobs.
package main

import (
	"log"

	"github.com/membo/vtubot/core/app"
	"github.com/membo/vtubot/core/cmd"
)

func main() {
	if err := cmd.Run(cmd.Options{
		DefaultConfigPath: "configs/config.yaml",
		Run:               app.Main,
	}); err != nil {
		log.Fatal(err)
	}
}
