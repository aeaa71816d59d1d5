package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/bluctl/internal/browse"
	"github.com/genricoloni/bluctl/internal/domain"
	"github.com/genricoloni/bluctl/internal/engine"
	"go.uber.org/zap"
)

const (
	_volumeStep  = 5
	_refreshRate = time.Second

	_favouritesService = "Qobuz"
	_help              = "commands: p pause, +/- volume, >/< skip, f/F add/remove favourite, v favourite albums, i info, " +
		"s sources, o N open, m N menu, a ACTION run, b A/B browse path, pl playlists, " +
		"w NAME save queue, x NAME delete playlist, /text search, l players, 1-9 pick, q quit"
)

// Backend is what the console drives
type Backend interface {
	View() *domain.View
	Session() *engine.Session
	Players() []domain.PlayerIdentity
	Connect(ctx context.Context, id domain.PlayerIdentity) error
	Describe(ctx context.Context) (*domain.View, error)
}

// Console is a line-oriented foreground loop.
// One goroutine reads commands, another prints the status line once per second.
type Console struct {
	logger  *zap.Logger
	backend Backend
	in      io.Reader
	out     io.Writer
	quit    func()

	outMu   sync.Mutex
	listed  []domain.PlayerIdentity
	lastOut string

	// browse state of the current session, guarded by outMu
	browseSession string
	nodes         []domain.BrowseNode
	actions       map[browse.Action]string
	searchSource  *domain.BrowseNode

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a console reading from in and writing to out. quit is called on "q" or end of input.
func New(logger *zap.Logger, backend Backend, in io.Reader, out io.Writer, quit func()) *Console {
	return &Console{
		logger:  logger,
		backend: backend,
		in:      in,
		out:     out,
		quit:    quit,
	}
}

// Start launches the reader and the status printer. It returns immediately.
func (c *Console) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	c.running = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel

	c.printf("%s\n", _help)

	c.wg.Add(1)
	go c.printLoop(loopCtx)
	// the reader blocks on input and is not waited for on Stop
	go c.readLoop(loopCtx)
	return nil
}

// Stop ends the status printer
func (c *Console) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.cancel()
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Console) readLoop(ctx context.Context) {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := c.Handle(ctx, scanner.Text()); err != nil {
			if errors.Is(err, errQuit) {
				break
			}
			c.printf("! %v\n", err)
		}
	}
	if ctx.Err() == nil && c.quit != nil {
		c.quit()
	}
}

func (c *Console) printLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(_refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			line := StatusLine(c.backend.View())
			c.outMu.Lock()
			if line != c.lastOut {
				fmt.Fprintln(c.out, line)
				c.lastOut = line
			}
			c.outMu.Unlock()
		}
	}
}

var errQuit = errors.New("quit")

// Handle runs one command line
func (c *Console) Handle(ctx context.Context, line string) error {
	cmd := strings.TrimSpace(line)
	if line == " " {
		cmd = "p"
	}
	if cmd == "" {
		return nil
	}

	switch {
	case cmd == "q":
		return errQuit
	case cmd == "l":
		c.listPlayers()
		return nil
	case len(cmd) == 1 && cmd[0] >= '1' && cmd[0] <= '9':
		n, _ := strconv.Atoi(cmd)
		return c.pickPlayer(ctx, n)
	case cmd == "h" || cmd == "?":
		c.printf("%s\n", _help)
		return nil
	}

	s := c.backend.Session()
	if s == nil {
		return domain.ErrNoSession
	}

	c.bindSession(s)

	name, arg, _ := strings.Cut(cmd, " ")
	arg = strings.TrimSpace(arg)

	switch {
	case cmd == "p":
		return s.Control.TogglePause(ctx)
	case cmd == "+":
		return s.Control.AdjustVolume(ctx, _volumeStep)
	case cmd == "-":
		return s.Control.AdjustVolume(ctx, -_volumeStep)
	case cmd == ">":
		return s.Control.SkipNext(ctx)
	case cmd == "<":
		return s.Control.SkipPrevious(ctx)
	case cmd == "f" || cmd == "F":
		v := s.View()
		if v.Status == nil {
			return domain.ErrNoSession
		}
		if cmd == "F" {
			return s.Control.RemoveFavourite(ctx, *v.Status)
		}
		return s.Control.AddFavourite(ctx, *v.Status)
	case cmd == "i":
		return c.describe(ctx)
	case cmd == "s":
		sources, err := s.Browse.SearchableSources(ctx)
		if err != nil {
			return err
		}
		c.showNodes(sources)
		return nil
	case cmd == "pl":
		playlists, err := s.Browse.Playlists(ctx)
		if err != nil {
			return err
		}
		c.showNodes(playlists)
		return nil
	case name == "o":
		return c.open(ctx, s, arg)
	case name == "m":
		return c.menu(ctx, s, arg)
	case name == "a":
		return c.runAction(ctx, s, arg)
	case name == "b":
		return c.browsePath(ctx, s, splitPath(arg))
	case cmd == "v":
		service := _favouritesService
		if v := s.View(); v.Status != nil && v.Status.Service != "" {
			service = v.Status.Service
		}
		return c.browsePath(ctx, s, []string{service, "Fav", "Album"})
	case name == "w":
		n, err := s.Control.SavePlaylist(ctx, arg)
		if err != nil {
			return err
		}
		c.printf("saved %q with %d entries\n", arg, n)
		return nil
	case name == "x":
		return s.Control.DeletePlaylist(ctx, arg)
	case strings.HasPrefix(cmd, "/"):
		return c.search(ctx, s, strings.TrimSpace(cmd[1:]))
	default:
		return fmt.Errorf("unknown command %q, h for help", cmd)
	}
}

// bindSession forgets listings that belong to a previous session
func (c *Console) bindSession(s *engine.Session) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.browseSession == s.ID {
		return
	}
	c.browseSession = s.ID
	c.nodes, c.actions, c.searchSource = nil, nil, nil
}

// open plays a listed node, or lists its children when it can only be browsed.
// A searchable node becomes the source for later searches.
func (c *Console) open(ctx context.Context, s *engine.Session, arg string) error {
	node, err := c.listedNode(arg)
	if err != nil {
		return err
	}
	if node.SearchCapable {
		c.outMu.Lock()
		c.searchSource = &node
		c.outMu.Unlock()
	}

	children, err := s.Control.SelectInput(ctx, node)
	if err != nil {
		return err
	}
	if children == nil {
		c.printf("playing %s\n", node.DisplayText)
		return nil
	}
	c.showNodes(children)
	return nil
}

func (c *Console) menu(ctx context.Context, s *engine.Session, arg string) error {
	node, err := c.listedNode(arg)
	if err != nil {
		return err
	}
	actions, err := s.Browse.ContextActions(ctx, node)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(actions))
	for a := range actions {
		names = append(names, string(a))
	}
	slices.Sort(names)

	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.actions = actions
	if len(names) == 0 {
		fmt.Fprintln(c.out, "no actions")
		return nil
	}
	fmt.Fprintf(c.out, "actions for %s: %s\n", node.DisplayText, strings.Join(names, ", "))
	return nil
}

func (c *Console) runAction(ctx context.Context, s *engine.Session, arg string) error {
	c.outMu.Lock()
	actionURL, ok := c.actions[browse.Action(arg)]
	c.outMu.Unlock()
	if !ok {
		return fmt.Errorf("no action %q, m N shows the menu of item N", arg)
	}
	return s.Control.RunAction(ctx, actionURL)
}

func (c *Console) browsePath(ctx context.Context, s *engine.Session, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("empty browse path")
	}

	reached, nodes, err := s.Browse.BrowsePath(ctx, names...)
	if err != nil {
		return err
	}
	if !reached {
		c.printf("%s not found, showing the last level reached\n", strings.Join(names, "/"))
	}
	c.showNodes(nodes)
	return nil
}

func (c *Console) describe(ctx context.Context) error {
	v, err := c.backend.Describe(ctx)
	if v != nil && v.Status != nil {
		c.printf("%s\n", Details(v))
	}
	return err
}

func (c *Console) search(ctx context.Context, s *engine.Session, query string) error {
	if query == "" {
		return fmt.Errorf("empty search")
	}

	c.outMu.Lock()
	source := c.searchSource
	c.outMu.Unlock()

	if source == nil {
		sources, err := s.Browse.SearchableSources(ctx)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return fmt.Errorf("%w: no searchable source", domain.ErrInvalidSource)
		}
		source = &sources[0]
	}

	results, err := s.Browse.Search(ctx, source.SearchKey, query)
	c.showNodes(results)
	return err
}

func splitPath(arg string) []string {
	var names []string
	for _, part := range strings.Split(arg, "/") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

func (c *Console) listedNode(arg string) (domain.BrowseNode, error) {
	n, err := strconv.Atoi(arg)
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if err != nil || n < 1 || n > len(c.nodes) {
		return domain.BrowseNode{}, fmt.Errorf("no item %q, %d listed", arg, len(c.nodes))
	}
	return c.nodes[n-1], nil
}

func (c *Console) listPlayers() {
	players := c.backend.Players()
	c.outMu.Lock()
	defer c.outMu.Unlock()

	c.listed = players
	if len(players) == 0 {
		fmt.Fprintln(c.out, "no players found yet")
		return
	}
	for i, p := range players {
		fmt.Fprintf(c.out, "%d) %s (%s)\n", i+1, p.Name(), p.Address())
	}
}

func (c *Console) pickPlayer(ctx context.Context, n int) error {
	c.outMu.Lock()
	listed := c.listed
	c.outMu.Unlock()

	if n > len(listed) {
		return fmt.Errorf("no player %d, l lists players", n)
	}
	return c.backend.Connect(ctx, listed[n-1])
}

// showNodes prints a numbered listing and keeps it for o, m and a
func (c *Console) showNodes(nodes []domain.BrowseNode) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.nodes = nodes
	for i, n := range nodes {
		if n.SecondaryText != "" {
			fmt.Fprintf(c.out, "  %d. %s - %s\n", i+1, n.DisplayText, n.SecondaryText)
			continue
		}
		fmt.Fprintf(c.out, "  %d. %s\n", i+1, n.DisplayText)
	}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
