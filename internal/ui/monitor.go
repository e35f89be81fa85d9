package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/drivehop/drivehop/internal/models"
	"github.com/drivehop/drivehop/internal/tasks"
)

// Client is the slice of the bridge client the monitor needs.
type Client interface {
	ListTasks(ctx context.Context) ([]*models.Task, error)
	CancelTask(ctx context.Context, id string) error
	Subscribe(ctx context.Context) (<-chan tasks.TaskEvent, func(), error)
}

// ViewState represents the current view in the TUI.
type ViewState int

const (
	TaskListView ViewState = iota
	DetailView
)

type tasksFetchedMsg struct {
	tasks []*models.Task
	err   error
}

type taskEventMsg struct {
	event tasks.TaskEvent
	ok    bool
}

type taskCancelledMsg struct {
	err error
}

// Model represents the task monitor state.
type Model struct {
	ctx      context.Context
	client   Client
	view     ViewState
	width    int
	height   int
	listView list.Model
	selected *models.Task
	events   <-chan tasks.TaskEvent
	unsub    func()
	err      error
	help     help.Model
	keys     keyMap
}

// NewModel creates a monitor connected to the given bridge client.
func NewModel(ctx context.Context, client Client) *Model {
	m := &Model{
		ctx:    ctx,
		client: client,
		view:   TaskListView,
		help:   help.New(),
		keys:   newKeyMap(),
	}
	m.listView = list.New(nil, list.NewDefaultDelegate(), 0, 0)
	m.listView.Title = "Transfer Tasks"
	return m
}

// Init fetches the current task list and opens the event subscription.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchTasks(), m.subscribe())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.listView.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case TaskListView:
			return m.handleListKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case tasksFetchedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, tea.Quit
		}
		m.setTasks(msg.tasks)
		return m, nil

	case taskEventMsg:
		if !msg.ok {
			return m, nil
		}
		return m, tea.Batch(m.fetchTasks(), m.waitForEvent())

	case taskCancelledMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		return m, m.fetchTasks()
	}

	var cmd tea.Cmd
	m.listView, cmd = m.listView.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case TaskListView:
		return m.renderList()
	case DetailView:
		return m.renderDetail()
	default:
		return ""
	}
}

// Close tears down the event subscription.
func (m *Model) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit
	case "r":
		return m, m.fetchTasks()
	case "c":
		if item, ok := m.listView.SelectedItem().(taskItem); ok {
			return m, m.cancelTask(item.task.ID)
		}
	case "enter":
		if item, ok := m.listView.SelectedItem().(taskItem); ok {
			m.selected = item.task
			m.view = DetailView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.listView, cmd = m.listView.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.Close()
		return m, tea.Quit
	case "esc":
		m.view = TaskListView
		m.selected = nil
		return m, nil
	case "c":
		if m.selected != nil {
			return m, m.cancelTask(m.selected.ID)
		}
	}
	return m, nil
}

func (m *Model) setTasks(taskList []*models.Task) {
	items := make([]list.Item, len(taskList))
	for i, task := range taskList {
		items[i] = taskItem{task: task}
		if m.selected != nil && task.ID == m.selected.ID {
			m.selected = task
		}
	}
	m.listView.SetItems(items)
	if m.listView.Width() == 0 {
		m.listView.SetSize(m.width-4, m.height-8)
	}
}

func (m *Model) fetchTasks() tea.Cmd {
	return func() tea.Msg {
		taskList, err := m.client.ListTasks(m.ctx)
		return tasksFetchedMsg{tasks: taskList, err: err}
	}
}

func (m *Model) subscribe() tea.Cmd {
	events, unsub, err := m.client.Subscribe(m.ctx)
	if err != nil {
		return func() tea.Msg { return tasksFetchedMsg{err: err} }
	}
	m.events = events
	m.unsub = unsub
	return m.waitForEvent()
}

func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.events
		return taskEventMsg{event: event, ok: ok}
	}
}

func (m *Model) cancelTask(id string) tea.Cmd {
	return func() tea.Msg {
		return taskCancelledMsg{err: m.client.CancelTask(m.ctx, id)}
	}
}

func (m *Model) renderList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.cancel, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s", m.listView.View(), helpView)
}

func (m *Model) renderDetail() string {
	task := m.selected
	if task == nil {
		m.view = TaskListView
		return m.renderList()
	}

	title := styles.title.Render(task.Title)
	info := fmt.Sprintf(
		"Status: %s\nProgress: %d%%\nMessage: %s\nSource: %s\nCreated: %s",
		statusLabel(task.Status),
		task.Progress,
		task.Message,
		task.SourceURL,
		task.CreatedAt.Format("2006-01-02 15:04:05"),
	)

	if task.Result != nil && task.Result.ShareLink != "" {
		link := task.Result.ShareLink
		if task.Result.AccessCode != "" {
			link = fmt.Sprintf("%s (code: %s)", link, task.Result.AccessCode)
		}
		info += fmt.Sprintf("\n\n%s %s", styles.ok.Render("Share link:"), link)
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.cancel, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
