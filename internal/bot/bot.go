// Package bot is the Telegram front end: chat commands over the same task
// services the HTTP API uses, plus scheduled digests for linked accounts.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"taskboard/internal/model"
	"taskboard/internal/repository"
	"taskboard/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageTitle
	stageDescription
	stagePriority
	stageDueDate
)

const (
	cbCompletePrefix = "complete:"
	cbDeletePrefix   = "delete:"
)

const (
	btnSkip         = "⏭️ Skip"
	btnConfirm      = "✅ Confirm"
	btnCancel       = "↩️ Cancel"
	btnCancelDialog = "⏪ Stop"
	btnLow          = "🔹 Low"
	btnMedium       = "🔸 Medium"
	btnHigh         = "🔥 High"
	menuNewTask     = "➕ New task"
	menuTasks       = "📋 Tasks"
	menuStats       = "📊 Stats"
	menuHelp        = "ℹ️ Help"
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

type confirmationRequest struct {
	taskID string
	title  string
}

// Deps are the services the bot talks to.
type Deps struct {
	Accounts *service.AccountService
	Tasks    *service.TaskService
	Digest   *service.DigestService
	Users    *repository.UserRepository
	Logger   *log.Logger
	Location *time.Location
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api           *tgbotapi.BotAPI
	accounts      *service.AccountService
	tasks         *service.TaskService
	digest        *service.DigestService
	users         *repository.UserRepository
	logger        *log.Logger
	loc           *time.Location
	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	mu            sync.Mutex
}

func New(token string, deps Deps) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	logger := deps.Logger.WithPrefix("bot")
	logger.Info("authorized", "account", api.Self.UserName)

	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Bot{
		api:           api,
		accounts:      deps.Accounts,
		tasks:         deps.Tasks,
		digest:        deps.Digest,
		users:         deps.Users,
		logger:        logger,
		loc:           loc,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commandList...)); err != nil {
		b.logger.Warn("register commands", "err", err)
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error("handle callback", "err", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Error("handle message", "err", err)
			}
		}
	}

	return nil
}

var commandList = []tgbotapi.BotCommand{
	{Command: "tasks", Description: "List tasks, optionally by status"},
	{Command: "newtask", Description: "Add a task step by step"},
	{Command: "search", Description: "Search task titles"},
	{Command: "stats", Description: "Task counters"},
	{Command: "digest", Description: "Overdue, due soon and urgent tasks"},
	{Command: "link", Description: "Link this chat to your account"},
	{Command: "unlink", Description: "Unlink this chat"},
	{Command: "cancel", Description: "Stop the current dialog"},
	{Command: "help", Description: "Show help"},
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Stopped. Nothing was saved.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		b.logger.Info("command", "user", msg.From.ID, "cmd", msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if state := b.getConversation(msg.From.ID); state != nil {
		b.logger.Debug("conversation step", "user", msg.From.ID, "stage", state.stage)
		return b.handleConversation(ctx, msg, state)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /newtask to add a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "link":
		return b.handleLink(ctx, msg)
	case "unlink":
		return b.handleUnlink(ctx, msg)
	case "tasks":
		return b.handleListTasks(ctx, msg)
	case "search":
		return b.handleSearch(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "digest":
		return b.handleDigest(ctx, msg)
	case "newtask":
		return b.startNewTaskConversation(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Stopped. Nothing was saved.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("👋 Hi, %s!\n<b>I keep your task board at hand.</b>\n\n", escape(name))

	if _, err := b.accounts.SessionForTelegram(ctx, msg.From.ID); err != nil {
		if !errors.Is(err, service.ErrUnauthenticated) {
			return err
		}
		return b.sendText(msg.Chat.ID, text+linkHint)
	}
	return b.sendText(msg.Chat.ID, text+helpText)
}

const helpText = "ℹ️ <b>Commands</b>\n" +
	"• /newtask: add a task step by step\n" +
	"• /tasks [pending|in-progress|completed]: list tasks with buttons\n" +
	"• /search &lt;words&gt;: find tasks by title\n" +
	"• /stats: task counters\n" +
	"• /digest: overdue, due soon and high priority tasks\n" +
	"• /link &lt;code&gt; or /unlink: connect this chat to your account\n" +
	"• /cancel: stop the current dialog"

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, helpText)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return b.sendText(msg.Chat.ID, "Send the code from the web app: <code>/link CODE</code>")
	}
	user, err := b.accounts.LinkTelegram(ctx, code, msg.From.ID)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	b.logger.Info("telegram linked", "user", user.ID, "telegram", msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("✅ Linked to <b>%s</b>.\n\n%s", escape(user.Email), helpText))
}

func (b *Bot) handleUnlink(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.accounts.UnlinkTelegram(ctx, msg.From.ID); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	b.clearConversation(msg.From.ID)
	b.clearConfirmation(msg.From.ID)
	return b.sendText(msg.Chat.ID, "🔓 This chat is no longer linked.")
}

func (b *Bot) handleListTasks(ctx context.Context, msg *tgbotapi.Message) error {
	status, ok := parseStatusArg(msg.CommandArguments())
	if !ok {
		return b.sendText(msg.Chat.ID, "Status must be pending, in-progress or completed, for example <code>/tasks pending</code>.")
	}
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendTaskList(ctx, msg.Chat.ID, sess, status)
}

func (b *Bot) handleSearch(ctx context.Context, msg *tgbotapi.Message) error {
	term := strings.TrimSpace(msg.CommandArguments())
	if term == "" {
		return b.sendText(msg.Chat.ID, "What should I look for? Example: <code>/search milk</code>")
	}
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	tasks, err := b.tasks.SearchTasks(ctx, sess, term, nil)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	if len(tasks) == 0 {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Nothing matches «%s».", escape(term)))
	}

	now := time.Now().In(b.loc)
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🔎 <b>Results for «%s»</b>\n\n", escape(term)))
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
	}
	return b.sendWithReplyMarkup(msg.Chat.ID, strings.TrimSpace(builder.String()), taskButtons(tasks))
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	stats, err := b.tasks.TaskStats(ctx, sess)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, formatStats(stats))
}

func (b *Bot) handleDigest(ctx context.Context, msg *tgbotapi.Message) error {
	sess, err := b.session(ctx, msg.From)
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	text, err := b.digest.Summary(ctx, sess.UserID, time.Now().In(b.loc))
	if err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) startNewTaskConversation(ctx context.Context, msg *tgbotapi.Message) error {
	if _, err := b.session(ctx, msg.From); err != nil {
		return b.replyError(msg.Chat.ID, err)
	}
	b.clearConfirmation(msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageTitle})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageTitle:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The title cannot be empty. Try again.", cancelKeyboard())
		}
		state.input.Title = text
		state.stage = stageDescription
		return b.sendWithReplyMarkup(msg.Chat.ID, "✏️ Add a short description (or press «Skip»).", skipKeyboard())
	case stageDescription:
		if !isSkipInput(text) {
			state.input.Description = text
		}
		state.stage = stagePriority
		return b.sendWithReplyMarkup(msg.Chat.ID, "🏷 How important is it?", priorityKeyboard())
	case stagePriority:
		priority, ok := parsePriorityInput(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick low, medium or high.", priorityKeyboard())
		}
		state.input.Priority = priority
		state.stage = stageDueDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏰ Due date as <code>2025-11-30</code> (or «Skip»).", skipKeyboard())
	case stageDueDate:
		if !isSkipInput(text) {
			if _, err := time.Parse(model.DueDateLayout, text); err != nil {
				return b.sendWithReplyMarkup(msg.Chat.ID, "I cannot read that date. Use <code>2025-11-30</code> or «Skip».", skipKeyboard())
			}
			state.input.DueDate = &text
		}
		err := b.finishTaskCreation(ctx, msg.From, state.input, msg.Chat.ID)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Start again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, from *tgbotapi.User, input service.TaskInput, chatID int64) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return b.replyError(chatID, err)
	}

	id, err := b.tasks.CreateTask(ctx, sess, input)
	if err != nil {
		return b.replyError(chatID, err)
	}
	b.logger.Info("task created", "task", id, "user", sess.UserID)

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>Title:</b> %s\n", escape(normalizeTitle(input.Title))))
	if input.Description != "" {
		summary.WriteString(fmt.Sprintf("• <b>Description:</b> %s\n", escape(input.Description)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Priority:</b> %s\n", priorityLabel(input.Priority)))
	if input.DueDate != nil {
		summary.WriteString(fmt.Sprintf("• <b>Due:</b> %s\n", escape(*input.DueDate)))
	}

	if err := b.sendText(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, sess, nil)
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.deleteTaskAndRefresh(ctx, msg.Chat.ID, msg.From, req)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Kept it.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Confirm or cancel the deletion.", confirmKeyboard())
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", "err", err)
	}

	chatID := cb.Message.Chat.ID
	switch {
	case strings.HasPrefix(cb.Data, cbCompletePrefix):
		taskID, ok := parseTaskID(cb.Data, cbCompletePrefix)
		if !ok {
			return nil
		}
		return b.completeTaskAndRefresh(ctx, chatID, cb.From, taskID)
	case strings.HasPrefix(cb.Data, cbDeletePrefix):
		taskID, ok := parseTaskID(cb.Data, cbDeletePrefix)
		if !ok {
			return nil
		}
		return b.askDeleteConfirmation(ctx, chatID, cb.From, taskID)
	default:
		return nil
	}
}

func (b *Bot) completeTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return b.replyError(chatID, err)
	}
	task, err := b.tasks.GetTask(ctx, sess, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if task.Status == model.StatusCompleted {
		return b.sendText(chatID, "That task is already completed.")
	}

	completed := model.StatusCompleted
	if _, err := b.tasks.UpdateTask(ctx, sess, taskID, service.TaskPatch{Status: &completed}); err != nil {
		return b.replyError(chatID, err)
	}
	b.logger.Info("task completed", "task", taskID, "user", sess.UserID)

	if err := b.sendText(chatID, fmt.Sprintf("✅ «%s» is done.", escape(normalizeTitle(task.Title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, sess, nil)
}

func (b *Bot) askDeleteConfirmation(ctx context.Context, chatID int64, from *tgbotapi.User, taskID string) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return b.replyError(chatID, err)
	}
	task, err := b.tasks.GetTask(ctx, sess, taskID)
	if err != nil {
		return b.replyError(chatID, err)
	}

	b.clearConversation(from.ID)
	b.setConfirmation(from.ID, confirmationRequest{taskID: task.ID, title: task.Title})
	text := fmt.Sprintf("Delete «%s»? This cannot be undone.", escape(normalizeTitle(task.Title)))
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) deleteTaskAndRefresh(ctx context.Context, chatID int64, from *tgbotapi.User, req confirmationRequest) error {
	sess, err := b.session(ctx, from)
	if err != nil {
		return b.replyError(chatID, err)
	}
	if _, err := b.tasks.DeleteTask(ctx, sess, req.taskID); err != nil {
		return b.replyError(chatID, err)
	}
	b.logger.Info("task deleted", "task", req.taskID, "user", sess.UserID)

	if err := b.sendText(chatID, fmt.Sprintf("\U0001F5D1 «%s» deleted.", escape(normalizeTitle(req.title)))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, chatID, sess, nil)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID int64, sess service.Session, status *model.TaskStatus) error {
	tasks, err := b.tasks.ListTasks(ctx, sess, service.TaskFilter{Status: status})
	if err != nil {
		return b.replyError(chatID, err)
	}
	if len(tasks) == 0 {
		if status != nil {
			return b.sendText(chatID, fmt.Sprintf("No %s tasks.", *status))
		}
		return b.sendText(chatID, "You have no tasks. Add one with /newtask.")
	}

	now := time.Now().In(b.loc)
	groups := groupByStatus(tasks, b.loc)

	var builder strings.Builder
	builder.WriteString("📋 <b>Your tasks</b>\n")
	builder.WriteString("Use the buttons to complete or delete a task.\n\n")

	var listed []model.Task
	for _, st := range statusOrder {
		section := groups[st]
		if len(section) == 0 {
			continue
		}
		builder.WriteString(fmt.Sprintf("<b>%s</b>\n", statusLabel(st)))
		for _, task := range section {
			builder.WriteString(formatTask(task, now))
		}
		builder.WriteByte('\n')
		listed = append(listed, section...)
	}

	return b.sendWithReplyMarkup(chatID, strings.TrimSpace(builder.String()), taskButtons(listed))
}

// SendDigests sends a summary to every user with a linked chat.
func (b *Bot) SendDigests(ctx context.Context) error {
	users, err := b.users.ListLinked(ctx)
	if err != nil {
		return err
	}
	now := time.Now().In(b.loc)
	for _, user := range users {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if user.TelegramID == nil {
			continue
		}
		text, err := b.digest.Summary(ctx, user.ID, now)
		if err != nil {
			b.logger.Error("build digest", "user", user.ID, "err", err)
			continue
		}
		if err := b.sendText(*user.TelegramID, text); err != nil {
			b.logger.Error("send digest", "user", user.ID, "err", err)
		}
	}
	return nil
}

func (b *Bot) session(ctx context.Context, from *tgbotapi.User) (service.Session, error) {
	return b.accounts.SessionForTelegram(ctx, from.ID)
}

// replyError answers with a short message for expected failures and logs the rest.
func (b *Bot) replyError(chatID int64, err error) error {
	switch {
	case errors.Is(err, service.ErrUnauthenticated),
		errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, service.ErrConflict):
	default:
		b.logger.Error("request failed", "chat", chatID, "err", err)
	}
	return b.sendText(chatID, userMessage(err))
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuNewTask):
		return true, b.startNewTaskConversation(ctx, msg)
	case strings.ToLower(menuTasks):
		return true, b.handleListTasks(ctx, msg)
	case strings.ToLower(menuStats):
		return true, b.handleStats(ctx, msg)
	case strings.ToLower(menuHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendWithReplyMarkup(chatID, text, mainMenuKeyboard())
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
