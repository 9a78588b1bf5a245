package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rehan1020/tgbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// sentMessage is a recorded sendMessage call.
type sentMessage struct {
	ChatID  int64  `json:"chat_id"`
	Text    string `json:"text"`
	ReplyTo int64  `json:"reply_to_message_id"`
}

type apiRecorder struct {
	mu      sync.Mutex
	sent    []sentMessage
	updates string // raw getUpdates result payload
}

func (r *apiRecorder) sentTexts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := make([]string, len(r.sent))
	for i, m := range r.sent {
		texts[i] = m.Text
	}
	return texts
}

// newTestAPI starts a fake Bot API server and returns a Client pointed
// at it.
func newTestAPI(t *testing.T) (*Client, *apiRecorder) {
	t.Helper()
	rec := &apiRecorder{updates: "[]"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			var m sentMessage
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				t.Errorf("sendMessage body: %v", err)
			}
			rec.mu.Lock()
			rec.sent = append(rec.sent, m)
			rec.mu.Unlock()
			fmt.Fprint(w, `{"ok":true,"result":{}}`)
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":99,"is_bot":true,"username":"lifecyclebot"}}`)
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			rec.mu.Lock()
			payload := rec.updates
			rec.mu.Unlock()
			fmt.Fprintf(w, `{"ok":true,"result":%s}`, payload)
		default:
			t.Errorf("unexpected API call %s", r.URL.Path)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"unknown method"}`)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(ClientConfig{Token: "test-token", APIURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient(): %v", err)
	}
	return client, rec
}

type fakeEngine struct {
	mu      sync.Mutex
	signals []domain.Signal
	pos     domain.Position
	err     error
	stats   domain.PositionStats
	dryRun  bool
}

func (e *fakeEngine) ProcessSignal(ctx context.Context, sig domain.Signal) (domain.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signals = append(e.signals, sig)
	if e.err != nil {
		return domain.Position{}, e.err
	}
	return e.pos, nil
}

func (e *fakeEngine) Stats(ctx context.Context) (domain.PositionStats, error) {
	return e.stats, nil
}

func (e *fakeEngine) DryRun() bool     { return e.dryRun }
func (e *fakeEngine) SetDryRun(v bool) { e.dryRun = v }

func (e *fakeEngine) signalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.signals)
}

type fakeUsers struct {
	mu     sync.Mutex
	users  map[int64]domain.User
	notify map[int64]bool
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[int64]domain.User{}, notify: map[int64]bool{}}
}

func (u *fakeUsers) Register(ctx context.Context, id int64, username string) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if existing, ok := u.users[id]; ok {
		return existing, nil
	}
	role := domain.UserRoleMember
	if len(u.users) == 0 {
		role = domain.UserRoleAdmin
	}
	user := domain.User{ID: id, Username: username, Role: role, NotifyEnabled: true}
	u.users[id] = user
	return user, nil
}

func (u *fakeUsers) GetByID(ctx context.Context, id int64) (domain.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	user, ok := u.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (u *fakeUsers) SetNotify(ctx context.Context, id int64, enabled bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notify[id] = enabled
	return nil
}

type fakePositionReader struct {
	open   []domain.Position
	recent []domain.Position
}

func (p *fakePositionReader) ListOpen(ctx context.Context) ([]domain.Position, error) {
	return p.open, nil
}

func (p *fakePositionReader) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	return p.recent, nil
}

type intakeEvent struct {
	kind string
	pos  domain.Position
	sig  domain.Signal
}

type fakeIntakeNotifier struct {
	mu     sync.Mutex
	events []intakeEvent
}

func (n *fakeIntakeNotifier) PositionCreated(ctx context.Context, pos domain.Position) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, intakeEvent{kind: "created", pos: pos})
	return nil
}

func (n *fakeIntakeNotifier) SignalRejected(ctx context.Context, sig domain.Signal, reason error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, intakeEvent{kind: "rejected", sig: sig})
	return nil
}

const signalChatID int64 = -100200300

func newTestBot(t *testing.T, client *Client, eng *fakeEngine) (*Bot, *fakeUsers, *fakeIntakeNotifier) {
	t.Helper()
	users := newFakeUsers()
	notifier := &fakeIntakeNotifier{}
	bot, err := NewBot(
		BotConfig{SignalChatID: signalChatID, Mode: "bot", PollInterval: 10 * time.Second},
		BotDeps{
			Client:    client,
			Engine:    eng,
			Positions: &fakePositionReader{},
			Users:     users,
			Notify:    notifier,
		},
		testLogger(),
	)
	if err != nil {
		t.Fatalf("NewBot(): %v", err)
	}
	return bot, users, notifier
}

func signalMessage(chatID int64, text string) Message {
	return Message{
		MessageID: 42,
		From:      &User{ID: 7, Username: "caller"},
		Chat:      Chat{ID: chatID, Type: "supergroup"},
		Text:      text,
	}
}

const sampleSignal = `{LONG} $PEPE/USDT
CA: 0x6982508145454Ce325dDbE47a25d4ec3d2311933
LIMIT ENTRY: 0.0000011
TP: 0.0000015
SL: 0.0000009`

func TestSignalMessageCreatesPosition(t *testing.T) {
	client, rec := newTestAPI(t)
	eng := &fakeEngine{pos: domain.Position{
		ID:               7,
		PairName:         "PEPE/USDT",
		Chain:            domain.ChainEthereum,
		TargetEntryPrice: 0.0000011,
		TakeProfitPrice:  0.0000015,
		StopLossPrice:    0.0000009,
	}}
	bot, _, notifier := newTestBot(t, client, eng)

	bot.handleMessage(context.Background(), signalMessage(signalChatID, sampleSignal))

	if eng.signalCount() != 1 {
		t.Fatalf("engine received %d signals, want 1", eng.signalCount())
	}
	sig := eng.signals[0]
	if sig.PairName != "PEPE/USDT" || sig.EntryPrice != 0.0000011 {
		t.Errorf("parsed signal = %+v", sig)
	}

	texts := rec.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Position #7 created") {
		t.Errorf("replies = %q, want one creation reply", texts)
	}
	if len(notifier.events) != 1 || notifier.events[0].kind != "created" {
		t.Errorf("notifier events = %+v, want one created", notifier.events)
	}
	if rec.sent[0].ReplyTo != 42 {
		t.Errorf("ReplyTo = %d, want 42", rec.sent[0].ReplyTo)
	}
}

func TestSignalFromOtherChatIgnored(t *testing.T) {
	client, rec := newTestAPI(t)
	eng := &fakeEngine{}
	bot, _, _ := newTestBot(t, client, eng)

	bot.handleMessage(context.Background(), signalMessage(555, sampleSignal))

	if eng.signalCount() != 0 {
		t.Errorf("engine received %d signals, want 0", eng.signalCount())
	}
	if len(rec.sentTexts()) != 0 {
		t.Errorf("replies = %q, want none", rec.sentTexts())
	}
}

func TestShortSignalDeclined(t *testing.T) {
	client, rec := newTestAPI(t)
	eng := &fakeEngine{}
	bot, _, _ := newTestBot(t, client, eng)

	short := strings.Replace(sampleSignal, "{LONG}", "{SHORT}", 1)
	short = strings.Replace(short, "TP: 0.0000015", "TP: 0.0000008", 1)
	short = strings.Replace(short, "SL: 0.0000009", "SL: 0.0000014", 1)
	bot.handleMessage(context.Background(), signalMessage(signalChatID, short))

	if eng.signalCount() != 0 {
		t.Errorf("engine received %d signals, want short declined before the engine", eng.signalCount())
	}
	texts := rec.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Short signals") {
		t.Errorf("replies = %q, want a short decline", texts)
	}
}

func TestCapacityRejectionReply(t *testing.T) {
	client, rec := newTestAPI(t)
	eng := &fakeEngine{err: fmt.Errorf("engine: 1 of 1 open: %w", domain.ErrCapacityExceeded)}
	bot, _, notifier := newTestBot(t, client, eng)

	bot.handleMessage(context.Background(), signalMessage(signalChatID, sampleSignal))

	texts := rec.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "position slots are full") {
		t.Errorf("replies = %q, want a capacity rejection", texts)
	}
	if len(notifier.events) != 1 || notifier.events[0].kind != "rejected" {
		t.Errorf("notifier events = %+v, want one rejected", notifier.events)
	}
}

func TestStartRegistersAdminFirst(t *testing.T) {
	client, rec := newTestAPI(t)
	bot, users, _ := newTestBot(t, client, &fakeEngine{})

	bot.handleMessage(context.Background(), signalMessage(signalChatID, "/start"))

	if _, err := users.GetByID(context.Background(), 7); err != nil {
		t.Fatalf("user not registered: %v", err)
	}
	texts := rec.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "admin") {
		t.Errorf("replies = %q, want an admin welcome for the first user", texts)
	}
}

func TestCommandRequiresRegistration(t *testing.T) {
	client, rec := newTestAPI(t)
	bot, _, _ := newTestBot(t, client, &fakeEngine{})

	bot.handleMessage(context.Background(), signalMessage(signalChatID, "/positions"))

	texts := rec.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "not registered") {
		t.Errorf("replies = %q, want a register prompt", texts)
	}
}

func TestDryRunAdminOnly(t *testing.T) {
	client, rec := newTestAPI(t)
	eng := &fakeEngine{}
	bot, users, _ := newTestBot(t, client, eng)

	// First registered user is admin, second is a member.
	if _, err := users.Register(context.Background(), 1, "boss"); err != nil {
		t.Fatal(err)
	}
	if _, err := users.Register(context.Background(), 7, "caller"); err != nil {
		t.Fatal(err)
	}

	bot.handleMessage(context.Background(), signalMessage(signalChatID, "/dryrun off"))
	if eng.DryRun() {
		t.Error("member flipped dry run")
	}
	texts := rec.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Admins only") {
		t.Errorf("replies = %q, want an admin gate", texts)
	}

	admin := signalMessage(signalChatID, "/dryrun on")
	admin.From = &User{ID: 1, Username: "boss"}
	bot.handleMessage(context.Background(), admin)
	if !eng.DryRun() {
		t.Error("admin /dryrun on did not flip the engine")
	}
}

func TestNotifyToggle(t *testing.T) {
	client, _ := newTestAPI(t)
	bot, users, _ := newTestBot(t, client, &fakeEngine{})
	if _, err := users.Register(context.Background(), 7, "caller"); err != nil {
		t.Fatal(err)
	}

	bot.handleMessage(context.Background(), signalMessage(signalChatID, "/notify off"))

	if enabled, ok := users.notify[7]; !ok || enabled {
		t.Errorf("notify[7] = %v,%v, want explicit off", enabled, ok)
	}
}

func TestAllowlistBlocksUnknownUsers(t *testing.T) {
	client, rec := newTestAPI(t)
	users := newFakeUsers()
	bot, err := NewBot(
		BotConfig{SignalChatID: signalChatID, Allowlist: []int64{1}},
		BotDeps{Client: client, Engine: &fakeEngine{}, Positions: &fakePositionReader{}, Users: users},
		testLogger(),
	)
	if err != nil {
		t.Fatalf("NewBot(): %v", err)
	}

	bot.handleMessage(context.Background(), signalMessage(signalChatID, "/start"))

	if len(rec.sentTexts()) != 0 {
		t.Errorf("replies = %q, want silence for non-allowlisted user", rec.sentTexts())
	}
	if _, err := users.GetByID(context.Background(), 7); err == nil {
		t.Error("non-allowlisted user was registered")
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	client, rec := newTestAPI(t)
	rec.updates = `[{"update_id":10,"message":{"message_id":1,"chat":{"id":1},"text":"hi"}},{"update_id":11}]`

	updates, err := client.GetUpdates(context.Background(), 0, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates(): %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("len(updates) = %d, want 2", len(updates))
	}
	if updates[0].UpdateID != 10 || updates[0].Message == nil || updates[0].Message.Text != "hi" {
		t.Errorf("updates[0] = %+v", updates[0])
	}
	if updates[1].Message != nil {
		t.Errorf("updates[1].Message = %+v, want nil", updates[1].Message)
	}
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{Token: "bad", APIURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient(): %v", err)
	}

	if _, err := client.GetMe(context.Background()); err == nil {
		t.Fatal("GetMe() = nil error, want the API error surfaced")
	} else if !strings.Contains(err.Error(), "Unauthorized") {
		t.Errorf("error = %v, want the API description included", err)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text, cmd, arg string
	}{
		{"/start", "/start", ""},
		{"/dryrun on", "/dryrun", "on"},
		{"/dryrun@lifecyclebot off", "/dryrun", "off"},
		{"/NOTIFY  on", "/notify", "on"},
	}
	for _, tt := range tests {
		cmd, arg := splitCommand(tt.text)
		if cmd != tt.cmd || arg != tt.arg {
			t.Errorf("splitCommand(%q) = %q,%q, want %q,%q", tt.text, cmd, arg, tt.cmd, tt.arg)
		}
	}
}
