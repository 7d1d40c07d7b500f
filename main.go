package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/walletchat/chatcore/api"
	"github.com/walletchat/chatcore/frame"
	"github.com/walletchat/chatcore/inbox"
	"github.com/walletchat/chatcore/notify"
	"github.com/walletchat/chatcore/presence"
	"github.com/walletchat/chatcore/session"
	"github.com/walletchat/chatcore/store"
)

var (
	flagAPIBase   = flag.String("api-base", "https://api.v2.walletchat.fun", "chat REST API base url")
	flagWallet    = flag.String("wallet", "", "wallet address to chat as; empty runs the read-only poller")
	flagStateFile = flag.String("state-file", "chatcore.db", "bolt file holding tabs and read cursors")
	flagPidFile   = flag.String("pid-file", "chatcore.pid", "pid file, guards the state file against a second instance")

	flagMetricsAddr    = flag.String("metrics-addr", "127.0.0.1:8600", "prometheus metrics listen address, ip:port")
	flagDisableMetrics = flag.Bool("disable-metrics", false, "disable prometheus metrics")
)

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	if v := validateFlags(); v > 0 {
		return v
	}

	pid := os.Getpid()
	if err := savePid(*flagPidFile, pid); err != nil {
		return errorf("pid file: %v", err)
	}
	defer func() {
		_ = os.Remove(*flagPidFile)
	}()

	tabs, err := inbox.Open(*flagStateFile)
	if err != nil {
		return errorf("state file `%s`: %v", *flagStateFile, err)
	}
	defer func() {
		_ = tabs.Close()
	}()

	glog.Info("chatcore client is starting")

	client := api.NewClient(*flagAPIBase)
	msgStore := store.NewMessageStore()
	tracker := presence.NewTracker()
	notices := notify.NewCenter()

	sess := session.New(session.Config{
		Wallet:   *flagWallet,
		Tokens:   api.NewTokenSource(client),
		Dialer:   session.WebsocketDialer{},
		Store:    msgStore,
		Presence: tracker,
		Inbox:    tabs,
		Notices:  notices,
		OnStatus: func(st session.Status) {
			glog.Infof("session status: %s", st)
			fmt.Printf("* %s\n", st)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *flagWallet != "" {
		sess.Connect()
	} else {
		// Read-only mode: mirror the public room into the local store.
		go client.Poll(ctx, func(batch []*frame.Message) {
			for _, m := range batch {
				if msgStore.Ingest(m) {
					printMessage(m)
				}
			}
		})
		fmt.Println("* no -wallet given, polling public messages read-only")
	}

	var metricsSrv *http.Server
	if !*flagDisableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(
			prometheus.DefaultGatherer,
			promhttp.HandlerOpts{},
		))
		metricsSrv = &http.Server{Addr: *flagMetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				glog.Errorf("metrics server: %v", err)
			}
		}()
	}

	stopC := make(chan struct{})
	var stopOnce sync.Once
	requestStop := func() { stopOnce.Do(func() { close(stopC) }) }

	c := &cli{
		sess:     sess,
		client:   client,
		profiles: api.NewProfileClient(client),
		store:    msgStore,
		tabs:     tabs,
		tracker:  tracker,
		notices:  notices,
	}
	go c.loop(ctx, requestStop)

	glog.Infof("`kill -USR1 %d` to dump client state; `CTRL+c` or `kill %d` to stop", pid, pid)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGTERM, syscall.SIGINT)

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGUSR1:
				c.dumpState()
			case syscall.SIGTERM, syscall.SIGINT:
				glog.Infof("received signal `%s`, stopping", sig.String())
				requestStop()
			}
		case <-stopC:
			signal.Stop(sigCh)
			sess.Close()
			if metricsSrv != nil {
				shutdownCtx, sdCancel := context.WithTimeout(context.Background(), 3*time.Second)
				_ = metricsSrv.Shutdown(shutdownCtx)
				sdCancel()
			}
			cancel()
			glog.Info("chatcore client exited")
			return 0
		}
	}
}

// cli is the line-oriented terminal frontend. It only ever pulls from the
// session's collaborators; the session owns all websocket traffic.
type cli struct {
	sess     *session.Session
	client   *api.Client
	profiles *api.ProfileClient
	store    *store.MessageStore
	tabs     *inbox.Controller
	tracker  *presence.Tracker
	notices  *notify.Center
}

func (c *cli) loop(ctx context.Context, requestStop func()) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if err := c.sess.SendMessage(line); err != nil {
				fmt.Printf("! %v\n", err)
			}
			continue
		}
		if c.command(ctx, line) {
			requestStop()
			return
		}
	}
	if err := sc.Err(); err != nil {
		glog.Errorf("stdin: %v", err)
	}
	requestStop()
}

// command runs one slash command; it reports whether the client should quit.
func (c *cli) command(ctx context.Context, line string) bool {
	args := strings.Fields(line)
	cmd, args := args[0], args[1:]

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/dm":
		if len(args) < 2 {
			fmt.Println("usage: /dm <peer> <text>")
			return false
		}
		if err := c.sess.SendDM(args[0], strings.Join(args[1:], " ")); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/open":
		if len(args) != 1 {
			fmt.Println("usage: /open <peer>")
			return false
		}
		c.sess.OpenThread(args[0])
		c.sess.FocusThread(args[0])
		c.printThread(args[0])

	case "/close":
		if len(args) != 1 {
			fmt.Println("usage: /close <peer>")
			return false
		}
		c.sess.CloseThread(args[0])

	case "/focus":
		if len(args) != 1 {
			fmt.Println("usage: /focus <peer>")
			return false
		}
		if !c.sess.FocusThread(args[0]) {
			fmt.Printf("! no open tab for %s\n", args[0])
		}

	case "/read":
		if len(args) != 1 {
			fmt.Println("usage: /read <peer>")
			return false
		}
		c.markRead(ctx, args[0])

	case "/thread":
		if len(args) != 1 {
			fmt.Println("usage: /thread <peer>")
			return false
		}
		c.printThread(args[0])

	case "/threads":
		c.printThreads(ctx)

	case "/typing":
		if err := c.sess.SendTyping(); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/delete":
		if len(args) != 1 {
			fmt.Println("usage: /delete <message-id>")
			return false
		}
		if err := c.sess.DeleteMessage(args[0]); err != nil {
			fmt.Printf("! %v\n", err)
		}

	case "/mute", "/unmute", "/ban", "/unban":
		c.moderate(ctx, cmd, args)

	case "/notices":
		for _, n := range c.notices.Active() {
			marker := " "
			if n.Sticky {
				marker = "!"
			}
			fmt.Printf("%s [%d] %s: %s\n", marker, n.ID, n.Kind, n.Text)
		}

	case "/dismiss":
		if len(args) != 1 {
			fmt.Println("usage: /dismiss <notice-id>")
			return false
		}
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Println("usage: /dismiss <notice-id>")
			return false
		}
		c.notices.Dismiss(id)

	case "/who":
		fmt.Printf("* %d users online, session %s\n", c.sess.UserCount(), c.sess.Status())

	default:
		fmt.Printf("! unknown command %s\n", cmd)
	}
	return false
}

func (c *cli) markRead(ctx context.Context, peer string) {
	c.sess.MarkThreadRead(peer)

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	if err := c.client.MarkRead(reqCtx, c.sess.Wallet(), peer, time.Now().UnixMilli()); err != nil {
		glog.Errorf("markRead(): %v", err)
	}
}

func (c *cli) moderate(ctx context.Context, cmd string, args []string) {
	action := api.ModAction(strings.TrimPrefix(cmd, "/"))
	if len(args) < 1 {
		fmt.Printf("usage: %s <peer> [tier]\n", cmd)
		return
	}
	target := args[0]

	gate := c.sess.Gate()
	switch action {
	case api.ActionBan, api.ActionUnban:
		if !gate.CanBan() {
			fmt.Println("! not allowed: ban requires an admin role")
			return
		}
	case api.ActionMute, api.ActionUnmute:
		tier := ""
		if len(args) > 1 {
			tier = args[1]
		}
		if !gate.CanMute(tier) {
			fmt.Printf("! not allowed to %s tier %q\n", action, tier)
			return
		}
	}

	reqCtx, reqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer reqCancel()
	if err := c.client.Moderate(reqCtx, c.sess.Wallet(), action, target); err != nil {
		var srvErr *api.ServerError
		if errors.As(err, &srvErr) {
			c.notices.Push(notify.KindModRejected, fmt.Sprintf("%s %s rejected: %s", action, target, srvErr.Body))
		}
		fmt.Printf("! %v\n", err)
		return
	}
	fmt.Printf("* %s %s ok\n", action, target)
}

func (c *cli) printThread(peer string) {
	self := c.sess.Wallet()
	now := time.Now()
	for _, m := range c.store.Thread(self, peer) {
		printStored(m)
	}
	if c.tracker.IsTyping(peer, now) {
		fmt.Printf("* %s is typing\n", peer)
	}
}

func (c *cli) printThreads(ctx context.Context) {
	self := c.sess.Wallet()
	for _, cv := range c.store.Conversations(self, c.tabs.Cursors()) {
		name := c.displayName(ctx, cv.Peer)
		marker := " "
		if cv.Unread {
			marker = "*"
		}
		state := ""
		if online, known := c.tracker.Online(cv.Peer, time.Now()); known {
			if online {
				state = " [online]"
			} else {
				state = " [offline]"
			}
		}
		fmt.Printf("%s %s%s: %s\n", marker, name, state, cv.Last.Body)
	}
}

// displayName resolves a wallet to its profile name, falling back to the
// raw address when the profile API is unavailable.
func (c *cli) displayName(ctx context.Context, wallet string) string {
	reqCtx, reqCancel := context.WithTimeout(ctx, 2*time.Second)
	defer reqCancel()
	p, err := c.profiles.Get(reqCtx, wallet)
	if err != nil || p.Name == "" {
		return wallet
	}
	return fmt.Sprintf("%s (%s)", p.Name, wallet)
}

func (c *cli) dumpState() {
	glog.Infof("state: session=%s wallet=%s users=%d messages=%d tabs=%v focus=%q notices=%d",
		c.sess.Status(), c.sess.Wallet(), c.sess.UserCount(),
		c.store.Len(), c.tabs.OpenTabs(), c.tabs.Focus(), len(c.notices.Active()))
}

func printStored(m store.Stored) {
	if m.Deleting {
		fmt.Printf("  %s <%s> (message deleted)\n", fmtTime(m.Timestamp), m.From)
		return
	}
	printMessage(&m.Message)
}

func printMessage(m *frame.Message) {
	scope := ""
	if m.Private {
		scope = " [dm]"
	}
	fmt.Printf("  %s <%s>%s %s\n", fmtTime(m.Timestamp), m.From, scope, m.Body)
}

func fmtTime(epochMs int64) string {
	return time.UnixMilli(epochMs).Format("15:04:05")
}

func validateFlags() int {
	if *flagAPIBase == "" {
		return errorf("--api-base is required")
	}
	u, err := url.Parse(*flagAPIBase)
	if err != nil {
		return errorf("--api-base: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errorf("--api-base: expect http or https url, got `%s`", *flagAPIBase)
	}

	if *flagStateFile == "" {
		return errorf("--state-file is required")
	}
	if *flagPidFile == "" {
		return errorf("--pid-file is required")
	}

	if !*flagDisableMetrics {
		if err := validateAddr(*flagMetricsAddr); err != nil {
			return errorf("--metrics-addr: %v", err)
		}
	}

	return 0
}

func validateAddr(s string) error {
	ips, _, err := net.SplitHostPort(s)
	if err != nil {
		return fmt.Errorf("error split host port from `%s`: %v", s, err)
	}
	ip := net.ParseIP(ips)
	if ip == nil {
		return fmt.Errorf("error parse IP from host `%s`", ips)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() {
		return fmt.Errorf("`%s` is not loopback or private address", ips)
	}
	return nil
}

func errorf(format string, args ...interface{}) int {
	glog.Errorf(format, args...)
	return 1
}

func savePid(name string, pid int) error {
	if _, err := os.Stat(name); err == nil {
		// Ok, see, if we have a stale lockfile here
		content, err := os.ReadFile(name)
		if err != nil {
			return err
		}
		if len(content) > 0 {
			oldPid, err := strconv.Atoi(string(content))
			if err != nil {
				return err
			}

			proc, err := os.FindProcess(oldPid)
			if err != nil {
				return err
			}
			defer proc.Release()

			if err := proc.Signal(syscall.Signal(0)); err == nil {
				return fmt.Errorf("pid file: exists with pid: %d, the process is running", oldPid)
			}
			glog.Infof("pid file exists with pid: %d, but is not running", oldPid)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("pid file: stat error: %v", err)
	}

	if err := os.WriteFile(name, []byte(strconv.Itoa(pid)), 0600); err != nil {
		return fmt.Errorf("pid file: write error: %v", err)
	}
	glog.Infof("pid file: write pid done")
	return nil
}
