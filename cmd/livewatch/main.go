// Command livewatch connects to the live channel as one user and prints every
// event it receives. Commands are read from stdin, one per line:
//
//	r          reset the reconnect counter and connect again
//	s          ask whether the partner is online
//	a <what>   broadcast an activity to the partner
//	q          quit
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oggyb/swipecook/internal/config"
	"github.com/oggyb/swipecook/internal/liveclient"
	"github.com/oggyb/swipecook/internal/logger"
	"github.com/oggyb/swipecook/internal/wire"
)

func main() {
	cfg := config.New()
	logger.InitFromConfig(cfg)

	lc := liveclient.ConfigFromApp(cfg)
	flag.StringVar(&lc.URL, "url", lc.URL, "live channel websocket URL")
	flag.StringVar(&lc.UserID, "user", "", "user id sent as X-User-ID")
	flag.StringVar(&lc.Token, "token", "", "bearer token")
	flag.IntVar(&lc.MaxReconnectAttempts, "attempts", lc.MaxReconnectAttempts, "reconnect attempt ceiling")
	flag.Parse()

	if lc.UserID == "" && lc.Token == "" {
		fmt.Fprintln(os.Stderr, "one of -user or -token is required")
		os.Exit(2)
	}

	m := liveclient.New(lc, liveclient.WithLogger(logger.Component(logger.L(), "livewatch")))
	defer m.Close()

	m.On(liveclient.EventStateChange, func(ev liveclient.Event) {
		fmt.Printf("state %s -> %s\n", ev.Prev, ev.State)
	})
	m.On(liveclient.EventMaxReconnectAttemptsReached, func(liveclient.Event) {
		fmt.Println("giving up; type r to retry")
	})
	m.On(liveclient.EventError, func(ev liveclient.Event) {
		if ev.Err != nil {
			fmt.Println("error:", ev.Err)
			return
		}
		fmt.Println("server error:", string(ev.Payload))
	})
	for _, typ := range []string{
		wire.EventNewMatch, wire.EventMatchUpdated,
		wire.EventPartnerOnline, wire.EventPartnerOffline, wire.EventPartnerActivity,
	} {
		m.On(typ, func(ev liveclient.Event) {
			fmt.Printf("%s %s\n", ev.Type, ev.Payload)
		})
	}

	if err := m.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-sig:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			cmd, arg, _ := strings.Cut(line, " ")
			switch cmd {
			case "r":
				m.ResetReconnectAttempts()
				if err := m.Connect(); err != nil {
					fmt.Println("connect:", err)
				}
			case "s":
				if !m.CheckPartnerStatus() {
					fmt.Println("not connected")
				}
			case "a":
				if !m.BroadcastActivity(arg, nil) {
					fmt.Println("not connected")
				}
			case "q":
				return
			case "":
			default:
				fmt.Println("commands: r, s, a <activity>, q")
			}
		}
	}
}
