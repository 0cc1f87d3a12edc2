package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"convertbot/internal/convert"
	"convertbot/internal/models"
	"convertbot/internal/phrases"
	"convertbot/internal/storage/stubs"
)

const (
	adminID = int64(1)
	userID  = int64(123)
	chatID  = int64(456)
)

// recordingGateway stores outbound calls instead of talking to Telegram
type recordingGateway struct {
	mu        sync.Mutex
	texts     []string
	documents []string
	downloads []string
	callbacks []string
	files     map[string][]byte
	onSend    func(path string)
}

func newRecordingGateway() *recordingGateway {
	return &recordingGateway{files: make(map[string][]byte)}
}

func (g *recordingGateway) SendText(ctx context.Context, chatID int64, text string, choices []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.texts = append(g.texts, text)
	return nil
}

func (g *recordingGateway) SendDocument(ctx context.Context, chatID int64, path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("document not on disk: %w", err)
	}
	if g.onSend != nil {
		g.onSend(path)
	}
	g.documents = append(g.documents, path)
	return nil
}

func (g *recordingGateway) Download(ctx context.Context, fileID, dst string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.files[fileID]
	if !ok {
		return errors.New("file not found")
	}
	g.downloads = append(g.downloads, fileID)
	return os.WriteFile(dst, data, 0o644)
}

func (g *recordingGateway) AnswerCallback(ctx context.Context, callbackID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, callbackID)
	return nil
}

// countingRunner emulates pandoc and ffmpeg
type countingRunner struct {
	mu    sync.Mutex
	calls []string
}

func (r *countingRunner) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	r.calls = append(r.calls, name)
	r.mu.Unlock()

	out := args[len(args)-1]
	switch name {
	case "ffmpeg":
		for i := 1; i <= 3; i++ {
			frame := strings.Replace(out, "%d", fmt.Sprint(i), 1)
			if err := os.WriteFile(frame, []byte("jpeg"), 0o644); err != nil {
				return nil, err
			}
		}
	case "pandoc":
		for i, a := range args {
			if a == "--output" {
				return nil, os.WriteFile(args[i+1], []byte("converted"), 0o644)
			}
		}
	}
	return nil, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type testEnv struct {
	bot     *Bot
	db      *stubs.MockDB
	gateway *recordingGateway
	runner  *countingRunner
	ws      *convert.Workspace
	phrases *phrases.Table
	logs    *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx := context.Background()
	db := stubs.NewMockDB()
	if err := db.Initialize(ctx); err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	if err := db.SetAdmin(ctx, adminID, true); err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}

	ws, err := convert.NewWorkspace(filepath.Join(t.TempDir(), "temp"))
	if err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}
	table, err := phrases.Default("eng")
	if err != nil {
		t.Fatalf("Failed to load phrases: %v", err)
	}

	// Keep error entries for assertions
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)
	runner := &countingRunner{}
	gateway := newRecordingGateway()

	bot, err := New(Params{
		Gateway:     gateway,
		Users:       db,
		Conversions: db,
		Backends: Backends{
			Image:    convert.NewImageConverter(ws, logger),
			Document: convert.NewDocumentConverter(ws, "", "", runner.run, logger),
			Video:    convert.NewVideoConverter(ws, "", runner.run, logger),
		},
		Phrases:   table,
		Workspace: ws,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("Failed to create bot: %v", err)
	}

	return &testEnv{bot: bot, db: db, gateway: gateway, runner: runner, ws: ws, phrases: table, logs: logs}
}

func (e *testEnv) register(t *testing.T, id int64) {
	t.Helper()
	if err := e.db.Register(context.Background(), id); err != nil {
		t.Fatalf("Failed to register user: %v", err)
	}
}

func (e *testEnv) send(msg *tgbotapi.Message) []Action {
	return e.bot.HandleMessage(context.Background(), msg)
}

// upload stores data under a new file id and sends it as a document
func (e *testEnv) upload(from int64, name string, data []byte) []Action {
	fileID := fmt.Sprintf("file-%d", len(e.gateway.files)+1)
	e.gateway.files[fileID] = data
	return e.send(documentMessage(from, fileID, name, len(data)))
}

func (e *testEnv) lastFile(t *testing.T, id int64) string {
	t.Helper()
	path, err := e.db.LastFile(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to get last file: %v", err)
	}
	return path
}

func (e *testEnv) expectTexts(t *testing.T, actions []Action, keys ...string) {
	t.Helper()
	if len(actions) != len(keys) {
		t.Fatalf("Expected %d actions, got %d: %+v", len(keys), len(actions), actions)
	}
	for i, key := range keys {
		if actions[i].Kind != ActionText {
			t.Fatalf("Expected action %d to be text, got %+v", i, actions[i])
		}
		if want := e.phrases.Lookup(key); actions[i].Text != want {
			t.Errorf("Expected action %d to be %q, got %q", i, want, actions[i].Text)
		}
	}
}

func textMessage(from int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: from},
		Chat: &tgbotapi.Chat{ID: chatID},
		Text: text,
	}
}

func documentMessage(from int64, fileID, name string, size int) *tgbotapi.Message {
	return &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: chatID},
		Document: &tgbotapi.Document{FileID: fileID, FileName: name, FileSize: size},
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for x := 0; x < 16; x++ {
		img.Set(x, x, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		msg  *tgbotapi.Message
		want Category
	}{
		{"command", &tgbotapi.Message{Text: "/start"}, CategoryCommand},
		{"plain text", &tgbotapi.Message{Text: "png"}, CategoryPlainText},
		{"text wins over document", &tgbotapi.Message{Text: "jpeg", Document: &tgbotapi.Document{}}, CategoryPlainText},
		{"document", &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "x"}}, CategoryDocument},
		{"document wins over photo", &tgbotapi.Message{Document: &tgbotapi.Document{}, Photo: []tgbotapi.PhotoSize{{}}}, CategoryDocument},
		{"photo", &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{}}}, CategoryPhoto},
		{"photo wins over video", &tgbotapi.Message{Photo: []tgbotapi.PhotoSize{{}}, Video: &tgbotapi.Video{}}, CategoryPhoto},
		{"video", &tgbotapi.Message{Video: &tgbotapi.Video{}}, CategoryVideo},
		{"sticker", &tgbotapi.Message{Sticker: &tgbotapi.Sticker{}}, CategorySticker},
		{"animation", &tgbotapi.Message{Animation: &tgbotapi.Animation{}}, CategoryAnimation},
		{"audio", &tgbotapi.Message{Audio: &tgbotapi.Audio{}}, CategoryAudio},
		{"empty", &tgbotapi.Message{}, CategoryUnsupported},
		{"nil", nil, CategoryUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.msg).Category; got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}

	c := Classify(&tgbotapi.Message{Document: &tgbotapi.Document{FileID: "abc", FileName: "a.png", FileSize: 42}})
	if c.FileID != "abc" || c.FileName != "a.png" || c.Size != 42 {
		t.Errorf("Expected document fields to be carried, got %+v", c)
	}
}

func TestCommandName(t *testing.T) {
	name, args := commandName("/Register@ConvertBot 42 extra")
	if name != "register" {
		t.Errorf("Expected 'register', got %q", name)
	}
	if len(args) != 2 || args[0] != "42" {
		t.Errorf("Expected args [42 extra], got %v", args)
	}
}

func TestBot_UnauthorizedUser(t *testing.T) {
	env := newTestEnv(t)
	stranger := int64(999)

	messages := map[string]*tgbotapi.Message{
		"register":  textMessage(stranger, "/register 5"),
		"start":     textMessage(stranger, "/start"),
		"formats":   textMessage(stranger, "/formats"),
		"unknown":   textMessage(stranger, "/nope"),
		"text":      textMessage(stranger, "png"),
		"document":  documentMessage(stranger, "file-1", "a.png", 10),
		"photo":     {From: &tgbotapi.User{ID: stranger}, Chat: &tgbotapi.Chat{ID: chatID}, Photo: []tgbotapi.PhotoSize{{}}},
		"video":     {From: &tgbotapi.User{ID: stranger}, Chat: &tgbotapi.Chat{ID: chatID}, Video: &tgbotapi.Video{}},
		"sticker":   {From: &tgbotapi.User{ID: stranger}, Chat: &tgbotapi.Chat{ID: chatID}, Sticker: &tgbotapi.Sticker{}},
		"animation": {From: &tgbotapi.User{ID: stranger}, Chat: &tgbotapi.Chat{ID: chatID}, Animation: &tgbotapi.Animation{}},
		"audio":     {From: &tgbotapi.User{ID: stranger}, Chat: &tgbotapi.Chat{ID: chatID}, Audio: &tgbotapi.Audio{}},
		"other":     {From: &tgbotapi.User{ID: stranger}, Chat: &tgbotapi.Chat{ID: chatID}},
	}
	env.gateway.files["file-1"] = pngBytes(t)

	for name, msg := range messages {
		t.Run(name, func(t *testing.T) {
			env.expectTexts(t, env.send(msg), phrases.UnknownUser)
		})
	}

	if len(env.gateway.downloads) != 0 {
		t.Errorf("Expected no downloads, got %v", env.gateway.downloads)
	}
	if ok, _ := env.db.IsRegistered(context.Background(), stranger); ok {
		t.Error("Expected stranger to stay unregistered")
	}
	if ok, _ := env.db.IsRegistered(context.Background(), 5); ok {
		t.Error("Expected user 5 not to be created")
	}
	if env.runner.count() != 0 {
		t.Error("Expected no backend invocation")
	}
}

func TestBot_MessageWithoutSender(t *testing.T) {
	env := newTestEnv(t)

	actions := env.send(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: "/start"})
	env.expectTexts(t, actions, phrases.UnknownUser)
	if actions[0].ChatID != chatID {
		t.Errorf("Expected reply to chat %d, got %d", chatID, actions[0].ChatID)
	}

	if actions := env.send(&tgbotapi.Message{From: &tgbotapi.User{ID: userID}, Text: "png"}); len(actions) != 0 {
		t.Errorf("Expected no reply without a chat, got %+v", actions)
	}
}

func TestBot_Register(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.expectTexts(t, env.send(textMessage(adminID, "/register 123")), phrases.UserRegistered)

	registered, err := env.db.IsRegistered(ctx, userID)
	if err != nil {
		t.Fatalf("Failed to check registration: %v", err)
	}
	if !registered {
		t.Fatal("Expected user 123 to be registered")
	}
	user, _ := env.db.GetUser(ctx, userID)
	if user.IsAdmin {
		t.Error("Expected registered user not to be admin")
	}

	env.expectTexts(t, env.send(textMessage(adminID, "/register 123")), phrases.AlreadyRegistered)
	env.expectTexts(t, env.send(textMessage(adminID, "/register")), phrases.WrongCommandFormat)
	env.expectTexts(t, env.send(textMessage(adminID, "/register 1 2")), phrases.WrongCommandFormat)
	env.expectTexts(t, env.send(textMessage(adminID, "/register abc")), phrases.NotValidUser)

	if user, _ := env.db.GetUser(ctx, userID); user.UsageCount != 0 || user.LastFilePath != "" {
		t.Errorf("Expected duplicate register to leave the user unchanged, got %+v", user)
	}
}

func TestBot_RegisterByNonAdmin(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, 77)

	env.expectTexts(t, env.send(textMessage(77, "/register 123")), phrases.NotAdmin)
	// An unregistered sender is unknown before being a non-admin
	env.expectTexts(t, env.send(textMessage(999, "/register 123")), phrases.UnknownUser)

	if ok, _ := env.db.IsRegistered(context.Background(), userID); ok {
		t.Error("Expected user 123 not to be created")
	}
}

func TestBot_Commands(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	env.expectTexts(t, env.send(textMessage(userID, "/start")), phrases.Start)
	env.expectTexts(t, env.send(textMessage(userID, "/start@ConvertBot")), phrases.Start)
	env.expectTexts(t, env.send(textMessage(userID, "/unknown")), phrases.WrongCommand)

	actions := env.send(textMessage(userID, "/formats"))
	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d", len(actions))
	}
	for _, want := range []string{"webp", "docx", "mp4"} {
		if !strings.Contains(actions[0].Text, want) {
			t.Errorf("Expected formats reply to list %s, got %q", want, actions[0].Text)
		}
	}
}

func TestBot_FileTooBig(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.gateway.files["big"] = []byte("x")

	actions := env.send(documentMessage(userID, "big", "huge.png", DefaultMaxFileSize+1))
	env.expectTexts(t, actions, phrases.FileTooBig)

	if len(env.gateway.downloads) != 0 {
		t.Errorf("Expected no download, got %v", env.gateway.downloads)
	}
	if path := env.lastFile(t, userID); path != "" {
		t.Errorf("Expected no pending file, got %q", path)
	}

	// Exactly at the limit is accepted
	env.gateway.files["limit"] = []byte("x")
	env.send(documentMessage(userID, "limit", "ok.png", DefaultMaxFileSize))
	if len(env.gateway.downloads) != 1 {
		t.Errorf("Expected upload at the limit to be downloaded")
	}
}

func TestBot_ImageUpload(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	actions := env.upload(userID, "photo.png", pngBytes(t))
	if len(actions) != 1 {
		t.Fatalf("Expected 1 action, got %d: %+v", len(actions), actions)
	}
	if !strings.HasPrefix(actions[0].Text, env.phrases.Lookup(phrases.ImageDetected)) {
		t.Errorf("Expected image detected reply, got %q", actions[0].Text)
	}

	want := []string{"ico", "bmp", "jpeg", "jpg", "webp"}
	if fmt.Sprint(actions[0].Choices) != fmt.Sprint(want) {
		t.Errorf("Expected choices %v, got %v", want, actions[0].Choices)
	}

	path := env.lastFile(t, userID)
	if filepath.Dir(path) != env.ws.Dir() || convert.FormatOf(path) != "png" {
		t.Errorf("Expected pending png in workspace, got %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected pending file on disk: %v", err)
	}
}

func TestBot_JPEGUploadOffersNoAlias(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	for _, name := range []string{"photo.jpg", "photo.jpeg"} {
		actions := env.upload(userID, name, []byte("jpeg bytes"))
		if len(actions) != 1 {
			t.Fatalf("Expected 1 action, got %d: %+v", len(actions), actions)
		}
		want := []string{"ico", "bmp", "png", "webp"}
		if fmt.Sprint(actions[0].Choices) != fmt.Sprint(want) {
			t.Errorf("Expected choices %v for %s, got %v", want, name, actions[0].Choices)
		}
	}
}

func TestBot_UploadReplacesPendingFile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	env.upload(userID, "first.png", pngBytes(t))
	first := env.lastFile(t, userID)

	actions := env.upload(userID, "notes.md", []byte("# notes"))
	second := env.lastFile(t, userID)

	if second == first {
		t.Fatal("Expected pending file to change")
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("Expected previous pending file to be deleted, stat err: %v", err)
	}
	if len(actions) != 1 || !strings.HasPrefix(actions[0].Text, env.phrases.Lookup(phrases.DocumentDetected)) {
		t.Errorf("Expected document detected reply, got %+v", actions)
	}
	for _, c := range actions[0].Choices {
		if c == "md" {
			t.Error("Expected uploaded format not to be offered")
		}
	}
}

func TestBot_UnsupportedUpload(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	env.expectTexts(t, env.upload(userID, "archive.rar", []byte("rar")), phrases.NotSupportedFormat)

	// The pending file is recorded even though nothing can convert it
	if env.lastFile(t, userID) == "" {
		t.Error("Expected pending file to be recorded")
	}
}

func TestBot_FormatWithoutFile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	env.expectTexts(t, env.send(textMessage(userID, "png")), phrases.NoFile)
	env.expectTexts(t, env.send(textMessage(userID, "frame")), phrases.NoFile)

	if env.runner.count() != 0 {
		t.Error("Expected no backend invocation")
	}
}

func TestBot_UnknownTargetFormat(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "photo.png", pngBytes(t))

	env.expectTexts(t, env.send(textMessage(userID, "gif")), phrases.NotSupportedFormat)
}

func TestBot_ImageConversion(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "photo.png", pngBytes(t))
	source := env.lastFile(t, userID)

	actions := env.send(textMessage(userID, "JPEG"))
	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d: %+v", len(actions), actions)
	}
	env.expectTexts(t, actions[:1], phrases.Converting)
	if actions[1].Kind != ActionDocument || convert.FormatOf(actions[1].FilePath) != "jpeg" {
		t.Fatalf("Expected a jpeg document, got %+v", actions[1])
	}

	if _, err := os.Stat(actions[1].FilePath); !os.IsNotExist(err) {
		t.Errorf("Expected produced file to be deleted, stat err: %v", err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Errorf("Expected source to be kept: %v", err)
	}

	ctx := context.Background()
	user, _ := env.db.GetUser(ctx, userID)
	if user.UsageCount != 1 {
		t.Errorf("Expected usage count 1, got %d", user.UsageCount)
	}
	events, _ := env.db.RecentConversions(ctx, userID, 10)
	if len(events) != 1 || events[0].Status != models.ConversionSucceeded || events[0].Backend != "image" {
		t.Errorf("Expected one successful image conversion, got %+v", events)
	}

	// The same upload can be converted again
	env.send(textMessage(userID, "bmp"))
	if len(env.gateway.documents) != 2 {
		t.Errorf("Expected 2 documents, got %d", len(env.gateway.documents))
	}
}

func TestBot_SameFormatConversion(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "photo.png", pngBytes(t))

	env.expectTexts(t, env.send(textMessage(userID, "png")), phrases.Converting, phrases.WrongFormat)

	if len(env.gateway.documents) != 0 {
		t.Errorf("Expected no document, got %v", env.gateway.documents)
	}
	user, _ := env.db.GetUser(context.Background(), userID)
	if user.UsageCount != 0 {
		t.Errorf("Expected usage count 0, got %d", user.UsageCount)
	}
	events, _ := env.db.RecentConversions(context.Background(), userID, 10)
	if len(events) != 1 || events[0].Status != models.ConversionUnsupported {
		t.Errorf("Expected one unsupported conversion, got %+v", events)
	}

	entries := env.logs.FilterMessage("Wrong format").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one wrong format error log, got %d", len(entries))
	}
	if entries[0].Level != zap.ErrorLevel || entries[0].ContextMap()["target_format"] != "png" {
		t.Errorf("Expected error entry for target png, got %+v", entries[0])
	}
}

// stuckDir creates a non-empty folder in the workspace that os.Remove fails on
func stuckDir(t *testing.T, env *testEnv) string {
	t.Helper()
	dir, err := env.ws.NewDir()
	if err != nil {
		t.Fatalf("Failed to create folder: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to fill folder: %v", err)
	}
	return dir
}

func TestBot_UploadSurvivesFailedCleanup(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	previous := stuckDir(t, env)
	if err := env.db.SetLastFile(context.Background(), userID, previous); err != nil {
		t.Fatalf("Failed to set last file: %v", err)
	}

	actions := env.upload(userID, "photo.png", pngBytes(t))
	if len(actions) != 1 || !strings.HasPrefix(actions[0].Text, env.phrases.Lookup(phrases.ImageDetected)) {
		t.Fatalf("Expected image detected reply, got %+v", actions)
	}

	path := env.lastFile(t, userID)
	if path == previous || convert.FormatOf(path) != "png" {
		t.Errorf("Expected pending file to be the new upload, got %q", path)
	}
	if env.logs.FilterMessage("Failed to delete temp file").Len() != 1 {
		t.Errorf("Expected the failed deletion to be logged, got %+v", env.logs.All())
	}
	if env.logs.FilterMessage("Failed to handle message").Len() != 0 {
		t.Error("Expected the failed deletion not to fail the message")
	}
}

func TestBot_ConversionSurvivesFailedCleanup(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "photo.png", pngBytes(t))

	// Swap the produced file for a non-empty folder once it is sent
	env.gateway.onSend = func(path string) {
		if err := os.Remove(path); err != nil {
			t.Errorf("Failed to remove produced file: %v", err)
		}
		if err := os.MkdirAll(filepath.Join(path, "inner"), 0o755); err != nil {
			t.Errorf("Failed to create folder: %v", err)
		}
	}

	actions := env.send(textMessage(userID, "bmp"))
	if len(actions) != 2 || actions[1].Kind != ActionDocument {
		t.Fatalf("Expected converting notice and document, got %+v", actions)
	}

	if env.logs.FilterMessage("Failed to delete temp file").Len() != 1 {
		t.Errorf("Expected the failed deletion to be logged, got %+v", env.logs.All())
	}
	user, _ := env.db.GetUser(context.Background(), userID)
	if user.UsageCount != 1 {
		t.Errorf("Expected usage count 1, got %d", user.UsageCount)
	}
}

func TestBot_MismatchedBackendAbortsSilently(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "photo.png", pngBytes(t))

	// docx is a document target, a png cannot feed the document backend
	env.expectTexts(t, env.send(textMessage(userID, "docx")), phrases.Converting)
	if env.runner.count() != 0 {
		t.Error("Expected pandoc not to run")
	}
}

func TestBot_DocumentConversion(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "notes.md", []byte("# notes"))

	actions := env.send(textMessage(userID, "pdf"))
	if len(actions) != 2 || actions[1].Kind != ActionDocument {
		t.Fatalf("Expected converting notice and a document, got %+v", actions)
	}
	if env.runner.count() != 1 || env.runner.calls[0] != "pandoc" {
		t.Errorf("Expected one pandoc run, got %v", env.runner.calls)
	}
}

func TestBot_VideoFrame(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	actions := env.upload(userID, "clip.mp4", []byte("video"))
	if len(actions) != 1 || fmt.Sprint(actions[0].Choices) != "[frame]" {
		t.Fatalf("Expected frame to be offered, got %+v", actions)
	}
	source := env.lastFile(t, userID)

	var archived string
	env.gateway.onSend = func(path string) { archived = path }

	actions = env.send(textMessage(userID, "frame"))
	var documents int
	for _, a := range actions {
		if a.Kind == ActionDocument {
			documents++
		}
	}
	if documents != 1 {
		t.Fatalf("Expected exactly one document, got %+v", actions)
	}
	if convert.FormatOf(archived) != "zip" {
		t.Errorf("Expected a zip archive, got %q", archived)
	}

	// Only the source is left: frames folder and archive are gone
	entries, err := os.ReadDir(env.ws.Dir())
	if err != nil {
		t.Fatalf("Failed to list workspace: %v", err)
	}
	if len(entries) != 1 || filepath.Join(env.ws.Dir(), entries[0].Name()) != source {
		t.Errorf("Expected only the source in workspace, got %v", entries)
	}
}

func TestBot_VideoOtherOperation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "clip.mp4", []byte("video"))

	for _, text := range []string{"gif", "png", "docx", "hello"} {
		env.expectTexts(t, env.send(textMessage(userID, text)), phrases.FeatureNotAvailable)
	}
	if env.runner.count() != 0 {
		t.Errorf("Expected no backend invocation, got %v", env.runner.calls)
	}
}

func TestBot_MediaReplies(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	media := func(mutate func(m *tgbotapi.Message)) *tgbotapi.Message {
		m := &tgbotapi.Message{From: &tgbotapi.User{ID: userID}, Chat: &tgbotapi.Chat{ID: chatID}}
		mutate(m)
		return m
	}

	env.expectTexts(t, env.send(media(func(m *tgbotapi.Message) { m.Photo = []tgbotapi.PhotoSize{{}} })), phrases.CompressedFile)
	env.expectTexts(t, env.send(media(func(m *tgbotapi.Message) { m.Video = &tgbotapi.Video{} })), phrases.CompressedFile)
	env.expectTexts(t, env.send(media(func(m *tgbotapi.Message) { m.Sticker = &tgbotapi.Sticker{} })), phrases.FeatureNotAvailable)
	env.expectTexts(t, env.send(media(func(m *tgbotapi.Message) { m.Animation = &tgbotapi.Animation{} })), phrases.FeatureNotAvailable)
	env.expectTexts(t, env.send(media(func(m *tgbotapi.Message) { m.Audio = &tgbotapi.Audio{} })), phrases.FeatureNotAvailable)
	env.expectTexts(t, env.send(media(func(m *tgbotapi.Message) {})), phrases.UnsupportedMessage)
}

func TestBot_FailureYieldsErrorReply(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	// Download of an unknown file id fails
	env.expectTexts(t, env.send(documentMessage(userID, "missing", "a.png", 10)), phrases.Error)

	// Panics are recovered the same way
	env.gateway.files["present"] = pngBytes(t)
	env.bot.backends.Image = nil
	env.expectTexts(t, env.send(documentMessage(userID, "present", "a.png", 10)), phrases.Error)
}

func TestBot_Callback(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)
	env.upload(userID, "photo.png", pngBytes(t))

	actions := env.bot.HandleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    "format:webp",
	})

	if len(env.gateway.callbacks) != 1 || env.gateway.callbacks[0] != "cb-1" {
		t.Errorf("Expected callback to be answered, got %v", env.gateway.callbacks)
	}
	if len(actions) != 2 || actions[1].Kind != ActionDocument || convert.FormatOf(actions[1].FilePath) != "webp" {
		t.Errorf("Expected a webp document, got %+v", actions)
	}

	ignored := env.bot.HandleCallback(context.Background(), &tgbotapi.CallbackQuery{
		ID:      "cb-2",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    "something:else",
	})
	if len(ignored) != 0 {
		t.Errorf("Expected unknown callback to be ignored, got %+v", ignored)
	}
}

func TestBot_StatsAndHistory(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	env.expectTexts(t, env.send(textMessage(userID, "/history")), phrases.HistoryEmpty)

	env.upload(userID, "photo.png", pngBytes(t))
	env.send(textMessage(userID, "jpeg"))

	actions := env.send(textMessage(userID, "/stats"))
	if len(actions) != 1 || !strings.HasPrefix(actions[0].Text, "Conversions: 1") {
		t.Errorf("Expected stats with one conversion, got %+v", actions)
	}

	actions = env.send(textMessage(userID, "/history"))
	if len(actions) != 1 || !strings.Contains(actions[0].Text, "png → jpeg") {
		t.Errorf("Expected history to list png → jpeg, got %+v", actions)
	}
}

func TestBot_ConcurrentUploadsKeepOnePendingFile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, userID)

	data := pngBytes(t)
	for i := 0; i < 10; i++ {
		env.gateway.files[fmt.Sprintf("f%d", i)] = data
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			env.send(documentMessage(userID, fmt.Sprintf("f%d", i), "p.png", len(data)))
		}(i)
	}
	wg.Wait()

	entries, err := os.ReadDir(env.ws.Dir())
	if err != nil {
		t.Fatalf("Failed to list workspace: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected exactly one live temp file, got %d", len(entries))
	}
	if filepath.Join(env.ws.Dir(), entries[0].Name()) != env.lastFile(t, userID) {
		t.Error("Expected the live temp file to be the pending file")
	}
	if env.bot.locks.size() != 0 {
		t.Errorf("Expected lock entries to be released, got %d", env.bot.locks.size())
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Params{}); err == nil {
		t.Error("Expected error for missing collaborators")
	}
}
