package main

import (
	"context"
	"flag"
	"os"
	"sync"
	"time"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"pxlsync.dev/internal/canvas"
	persistlog "pxlsync.dev/internal/persistence/log"
	"pxlsync.dev/internal/persistence/notifdb"
	"pxlsync.dev/internal/protocol"
	"pxlsync.dev/internal/template"
)

type watchCmd struct {
	templates       stringList
	progressEvery   time.Duration
	notificationsDB string
	chatLogDir      string
}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "mirror the canvas and log what happens on it" }
func (*watchCmd) Usage() string {
	return "watch [-template link ...] [-progress_every d] [-notifications_db file] [-chat_log dir]\n"
}

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.Var(&c.templates, "template", "template link to report on (repeatable; defaults to config templates)")
	f.DurationVar(&c.progressEvery, "progress_every", time.Minute, "template progress report interval")
	f.StringVar(&c.notificationsDB, "notifications_db", "", "sqlite file archiving notifications (overrides config)")
	f.StringVar(&c.chatLogDir, "chat_log", "", "directory for the chat and alert journal (overrides config)")
}

func (c *watchCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	a := appFrom(args)
	client, err := newClient(a)
	if err != nil {
		a.log.WithError(err).Error("watch: client")
		return subcommands.ExitFailure
	}
	log := a.log.WithField("client", client.ID())

	var wg sync.WaitGroup
	archive := make(chan []protocol.Notification, 64)
	if path := pick(c.notificationsDB, a.cfg.NotificationsDB); path != "" {
		db, err := notifdb.Open(path)
		if err != nil {
			log.WithError(err).Error("watch: notifications db")
			return subcommands.ExitFailure
		}
		defer db.Close()
		site := client.BaseURL().Host
		wg.Add(1)
		go func() {
			defer wg.Done()
			for notes := range archive {
				if err := db.Upsert(context.Background(), site, notes...); err != nil {
					log.WithError(err).Warn("watch: archive notifications")
				}
			}
		}()
	}

	var chat *persistlog.ChatLogger
	if dir := pick(c.chatLogDir, a.cfg.ChatLogDir); dir != "" {
		chat = persistlog.NewChatLogger(dir)
		defer chat.Close()
	}

	unsubscribe := client.Subscribe(func(e canvas.Event) {
		switch ev := e.(type) {
		case canvas.PixelEvent:
			log.WithFields(logrus.Fields{"x": ev.X, "y": ev.Y, "color": ev.Color, "old": ev.OldColor}).Trace("pixel")
		case canvas.UsersEvent:
			log.WithField("users", ev.Count).Info("users")
		case canvas.SyncEvent:
			log.WithFields(logrus.Fields{"width": ev.Metadata.Width, "height": ev.Metadata.Height}).Info("synced")
			sendNotes(archive, client.Notifications())
		case canvas.NotificationEvent:
			log.WithField("title", ev.Notification.Title).Info("notification")
			sendNotes(archive, []protocol.Notification{ev.Notification})
		case canvas.AlertEvent:
			log.WithField("sender", ev.Sender).Warn("alert: " + ev.Message)
			if chat != nil {
				if err := chat.WriteAlert(ev.Sender, ev.Message); err != nil {
					log.WithError(err).Warn("watch: chat journal")
				}
			}
		case canvas.ChatMessageEvent:
			log.WithField("author", ev.Message.Author).Debug(ev.Message.MessageRaw)
			if chat != nil {
				if err := chat.WriteChat(ev.Message); err != nil {
					log.WithError(err).Warn("watch: chat journal")
				}
			}
		case canvas.ErrorEvent:
			log.WithError(ev.Err).Warn("canvas error")
		case canvas.DisconnectEvent:
			if ev.Err != nil {
				log.WithError(ev.Err).Warn("disconnected")
			} else {
				log.Info("disconnected")
			}
		case canvas.ReadyEvent:
			log.Info("ready")
		}
	})

	status := c.run(ctx, a, client)
	client.Disconnect()
	unsubscribe()
	close(archive)
	wg.Wait()
	return status
}

func (c *watchCmd) run(ctx context.Context, a *app, client *canvas.Client) subcommands.ExitStatus {
	if err := client.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return subcommands.ExitSuccess
		}
		a.log.WithError(err).Error("watch: connect")
		return subcommands.ExitFailure
	}

	links := templateLinks(a, c.templates)
	var templates []*template.Template
	if len(links) > 0 {
		meta, _ := client.Metadata()
		var err error
		if templates, err = loadTemplates(ctx, a, links, meta.Palette); err != nil {
			a.log.WithError(err).Error("watch: load templates")
			return subcommands.ExitFailure
		}
	}
	if len(templates) == 0 || c.progressEvery <= 0 {
		<-ctx.Done()
		return subcommands.ExitSuccess
	}

	t := time.NewTicker(c.progressEvery)
	defer t.Stop()
	for {
		reportProgress(client, templates)
		select {
		case <-ctx.Done():
			return subcommands.ExitSuccess
		case <-t.C:
		}
	}
}

func reportProgress(client *canvas.Client, templates []*template.Template) {
	_, layers, ok := client.Mirror()
	if !ok || layers[canvas.LayerCanvas] == nil {
		return
	}
	for _, t := range templates {
		printProgress(os.Stdout, t, t.Progress(layers[canvas.LayerCanvas], layers[canvas.LayerPlacemap]))
	}
}

// sendNotes hands notifications to the archiver without blocking the
// client; a full queue drops the batch.
func sendNotes(ch chan<- []protocol.Notification, notes []protocol.Notification) {
	if len(notes) == 0 {
		return
	}
	select {
	case ch <- notes:
	default:
	}
}

func pick(flagValue, cfgValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return cfgValue
}
