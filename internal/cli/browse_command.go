package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"jobportal/internal/listsync"
	"jobportal/internal/logging"
	"jobportal/internal/model"
	"jobportal/internal/portal"
	"jobportal/internal/workflow"
)

type browseMode int

const (
	browseModeList browseMode = iota
	browseModeSearch
	browseModeStatus
)

// listController is the part of a listsync.Dispatcher the browser drives.
type listController interface {
	OnQueryChange(q model.ListQuery)
	Dispatch(q model.ListQuery) uint64
	LoadMore() (uint64, bool)
	Refresh() uint64
}

type statusChanger interface {
	ChangeStatus(ctx context.Context, rec model.ApplicationRecord, req workflow.ChangeRequest) (model.ApplicationRecord, error)
}

// browseView renders one item type.
type browseView[T model.Item] struct {
	title       string
	filters     []string
	row         func(T) string
	details     func(T) []string
	application func(T) (model.ApplicationRecord, bool)
}

type statusDialog struct {
	record  model.ApplicationRecord
	options []model.ApplicationStatus
	index   int
	focus   int
	date    textinput.Model
	note    textinput.Model
	err     string
	saving  bool
}

type browseModel[T model.Item] struct {
	resource portal.Resource
	view     browseView[T]
	ctrl     listController
	updates  <-chan listsync.AccumulatedList[T]
	changer  statusChanger
	timeout  time.Duration

	list      listsync.AccumulatedList[T]
	query     model.ListQuery
	filterIdx int
	search    textinput.Model
	spinner   spinner.Model
	cursor    int
	width     int
	height    int
	mode      browseMode
	dialog    *statusDialog
	notice    string
	noticeErr bool
	// loginRequired is set once the portal rejects the session; browsing
	// stops until the user sets a new token.
	loginRequired bool
}

type snapshotMsg[T model.Item] struct {
	list listsync.AccumulatedList[T]
}

type statusChangedMsg struct {
	rec  model.ApplicationRecord
	err  error
	from model.ApplicationStatus
}

var (
	browseTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	browseMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	browseErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	browseOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	browsePanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	browseSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

func runBrowse(args []string) error {
	name := "jobs"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	res, ok := portal.ParseResource(name)
	if !ok {
		return fmt.Errorf("unknown list %q (use jobs, applications, applied or shortlist)", name)
	}

	fs := flag.NewFlagSet("browse", flag.ContinueOnError)
	dir := dirFlag(fs)
	search := fs.String("search", "", "initial search text")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !stdinIsTTY() {
		return errors.New("browse requires an interactive terminal (TTY)")
	}

	a, err := loadApp(*dir)
	if err != nil {
		return err
	}
	// stderr shares the terminal with the alt screen
	a.logger = logging.Discard()
	if a.client, err = newClient(a.settings, a.logger); err != nil {
		return err
	}
	q := model.ListQuery{SearchText: *search, Page: 1, PageSize: a.settings.PageSize}

	if res.ItemsAreApplications() {
		fetch := listsync.FetcherFunc[model.ApplicationRecord](func(ctx context.Context, q model.ListQuery) (model.ResultPage[model.ApplicationRecord], error) {
			return a.client.ListApplications(ctx, q)
		})
		acc := listsync.NewAccumulator(fetch, a.logger)
		wf := workflow.NewStatusWorkflow(a.client, workflow.Options{
			Logger: a.logger,
			OnUpdated: func(rec model.ApplicationRecord) {
				acc.ReplaceItem(rec)
			},
		})
		return runBrowseProgram(a, res, acc, applicationView(), wf, q)
	}

	fetch := listsync.FetcherFunc[model.Job](func(ctx context.Context, q model.ListQuery) (model.ResultPage[model.Job], error) {
		return a.client.ListJobs(ctx, res, q)
	})
	return runBrowseProgram(a, res, listsync.NewAccumulator(fetch, a.logger), jobView(res), nil, q)
}

func runBrowseProgram[T model.Item](a *app, res portal.Resource, acc *listsync.Accumulator[T], view browseView[T], changer statusChanger, q model.ListQuery) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan listsync.AccumulatedList[T], 1)
	unsubscribe := acc.Subscribe(func(snap listsync.AccumulatedList[T]) {
		sendLatest(updates, snap)
	})
	defer unsubscribe()

	d := listsync.NewDispatcher(ctx, acc, listsync.DispatcherOptions{
		Debounce:     a.settings.Debounce,
		FetchTimeout: a.settings.FetchTimeout,
		Logger:       a.logger,
	})
	defer d.Close()

	m := newBrowseModel(res, view, d, updates, changer, q)
	m.timeout = a.settings.RequestTimeout
	d.Dispatch(m.query)

	p := tea.NewProgram(m, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return errors.New("browse requires an interactive terminal (TTY)")
		}
		return err
	}
	if fm, ok := final.(browseModel[T]); ok && fm.loginRequired {
		return model.Errorf(model.KindAuth, "browse", "session rejected by the portal; run jobportal settings set --token or set PORTAL_TOKEN")
	}
	return nil
}

// sendLatest delivers v, replacing an undelivered older snapshot so the
// subscriber never blocks the accumulator.
func sendLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func newBrowseModel[T model.Item](res portal.Resource, view browseView[T], ctrl listController, updates <-chan listsync.AccumulatedList[T], changer statusChanger, q model.ListQuery) browseModel[T] {
	search := textinput.New()
	search.Prompt = "search> "
	search.Placeholder = "title, company, candidate..."
	search.CharLimit = 200
	search.SetValue(q.SearchText)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return browseModel[T]{
		resource: res,
		view:     view,
		ctrl:     ctrl,
		updates:  updates,
		changer:  changer,
		timeout:  portal.DefaultTimeout,
		query:    q.Normalize(),
		search:   search,
		spinner:  sp,
		mode:     browseModeList,
		list: listsync.AccumulatedList[T]{
			ItemsByKey: map[string]T{},
			LoadStatus: listsync.StatusIdle,
		},
	}
}

func (m browseModel[T]) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForSnapshot(m.updates))
}

func waitForSnapshot[T model.Item](ch <-chan listsync.AccumulatedList[T]) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return snapshotMsg[T]{list: snap}
	}
}

func (m browseModel[T]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.search.Width = clampInt(m.width-12, 20, 120)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case snapshotMsg[T]:
		m = m.applySnapshot(msg.list)
		return m, waitForSnapshot(m.updates)
	case statusChangedMsg:
		return m.applyStatusChange(msg), nil
	case tea.KeyMsg:
		if m.loginRequired {
			return m, tea.Quit
		}
		switch m.mode {
		case browseModeSearch:
			return m.updateSearch(msg)
		case browseModeStatus:
			return m.updateStatusDialog(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m browseModel[T]) applySnapshot(snap listsync.AccumulatedList[T]) browseModel[T] {
	m.list = snap
	total := len(snap.Order)
	if m.cursor > total-1 {
		m.cursor = max(total-1, 0)
	}
	if snap.LoadStatus == listsync.StatusFailed && model.IsAuth(snap.LastError) {
		m.loginRequired = true
		m.mode = browseModeList
		m.dialog = nil
		return m
	}
	if snap.LoadStatus == listsync.StatusFailed && snap.LastError != nil {
		m.notice = describeError(snap.LastError)
		m.noticeErr = true
	} else if snap.LoadStatus == listsync.StatusSucceeded && m.noticeErr {
		m.notice = ""
		m.noticeErr = false
	}
	return m
}

func (m browseModel[T]) applyStatusChange(msg statusChangedMsg) browseModel[T] {
	if m.dialog == nil {
		return m
	}
	if model.IsAuth(msg.err) {
		m.loginRequired = true
		m.dialog = nil
		m.mode = browseModeList
		return m
	}
	if msg.err != nil {
		m.dialog.saving = false
		m.dialog.err = describeError(msg.err)
		return m
	}
	m.dialog = nil
	m.mode = browseModeList
	if msg.rec.Status == msg.from {
		m.notice = fmt.Sprintf("application %s unchanged", msg.rec.ID)
	} else {
		m.notice = fmt.Sprintf("application %s: %s -> %s", msg.rec.ID, msg.from, msg.rec.Status)
	}
	m.noticeErr = false
	return m
}

func (m browseModel[T]) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	total := len(m.list.Order)
	switch msg.String() {
	case "ctrl+c", "q", "esc":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < total-1 {
			m.cursor++
		}
		// reaching the last row pulls the next page
		if m.cursor == total-1 {
			m.ctrl.LoadMore()
		}
	case "/":
		m.mode = browseModeSearch
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "tab":
		if len(m.view.filters) > 0 {
			m.filterIdx = (m.filterIdx + 1) % len(m.view.filters)
			m.query.StatusFilter = m.view.filters[m.filterIdx]
			m.query.Page = 1
			m.ctrl.OnQueryChange(m.query)
		}
	case "n":
		if _, ok := m.ctrl.LoadMore(); !ok {
			m.notice = "nothing more to load"
			m.noticeErr = false
		}
	case "r":
		m.ctrl.Refresh()
		m.notice = "refreshing..."
		m.noticeErr = false
	case "s":
		return m.openStatusDialog()
	}
	return m, nil
}

func (m browseModel[T]) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter", "esc", "tab":
		m.mode = browseModeList
		m.search.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if m.search.Value() != m.query.SearchText {
		m.query.SearchText = m.search.Value()
		m.query.Page = 1
		m.ctrl.OnQueryChange(m.query)
	}
	return m, cmd
}

func (m browseModel[T]) openStatusDialog() (tea.Model, tea.Cmd) {
	if m.changer == nil || m.view.application == nil {
		m.notice = "status changes are only available on applications"
		m.noticeErr = false
		return m, nil
	}
	item, ok := m.selected()
	if !ok {
		return m, nil
	}
	rec, ok := m.view.application(item)
	if !ok {
		return m, nil
	}
	options := model.NextStatuses(rec.Status)
	if len(options) == 0 {
		m.notice = fmt.Sprintf("application %s is %s; no further changes", rec.ID, rec.Status)
		m.noticeErr = false
		return m, nil
	}

	date := textinput.New()
	date.Prompt = "interview> "
	date.Placeholder = "YYYY-MM-DD HH:MM"
	date.CharLimit = 40
	note := textinput.New()
	note.Prompt = "note> "
	note.CharLimit = 500

	m.dialog = &statusDialog{record: rec, options: options, date: date, note: note}
	m.mode = browseModeStatus
	return m, nil
}

func (m browseModel[T]) updateStatusDialog(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	d := m.dialog
	if d == nil {
		m.mode = browseModeList
		return m, nil
	}
	if d.saving {
		return m, nil
	}
	switch msg.String() {
	case "ctrl+c", "esc":
		m.dialog = nil
		m.mode = browseModeList
		m.notice = "status change cancelled"
		m.noticeErr = false
		return m, nil
	case "tab", "down":
		d.focus = (d.focus + 1) % 3
		return m, d.focusInput()
	case "shift+tab", "up":
		d.focus = (d.focus + 2) % 3
		return m, d.focusInput()
	case "left", "right":
		if d.focus == 0 {
			step := 1
			if msg.String() == "left" {
				step = len(d.options) - 1
			}
			d.index = (d.index + step) % len(d.options)
			return m, nil
		}
	case "enter":
		req, err := d.request()
		if err != nil {
			d.err = err.Error()
			return m, nil
		}
		d.err = ""
		d.saving = true
		return m, changeStatusCmd(m.changer, d.record, req, m.timeout)
	}

	var cmd tea.Cmd
	switch d.focus {
	case 1:
		d.date, cmd = d.date.Update(msg)
	case 2:
		d.note, cmd = d.note.Update(msg)
	}
	return m, cmd
}

func (d *statusDialog) target() model.ApplicationStatus {
	return d.options[d.index]
}

func (d *statusDialog) focusInput() tea.Cmd {
	d.date.Blur()
	d.note.Blur()
	switch d.focus {
	case 1:
		return d.date.Focus()
	case 2:
		return d.note.Focus()
	}
	return nil
}

func (d *statusDialog) request() (workflow.ChangeRequest, error) {
	when, err := parseInterviewDate(d.date.Value())
	if err != nil {
		return workflow.ChangeRequest{}, err
	}
	return workflow.ChangeRequest{Target: d.target(), InterviewDate: when, Note: d.note.Value()}, nil
}

func changeStatusCmd(changer statusChanger, rec model.ApplicationRecord, req workflow.ChangeRequest, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		updated, err := changer.ChangeStatus(ctx, rec, req)
		return statusChangedMsg{rec: updated, err: err, from: rec.Status}
	}
}

func (m browseModel[T]) selected() (T, bool) {
	var zero T
	if m.cursor < 0 || m.cursor >= len(m.list.Order) {
		return zero, false
	}
	item, ok := m.list.ItemsByKey[m.list.Order[m.cursor]]
	return item, ok
}

func (m browseModel[T]) View() string {
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}
	if m.loginRequired {
		return m.viewLoginRequired()
	}
	if m.mode == browseModeStatus && m.dialog != nil {
		return m.viewStatusDialog()
	}

	header := browseTitleStyle.Render(m.view.title) + "\n" +
		browseMutedStyle.Render("up/down: move | /: search | tab: status filter | n: load more | r: refresh | s: change status | q: quit")
	bar := m.renderQueryBar()

	if m.width < 90 {
		body := lipgloss.JoinVertical(lipgloss.Left, m.renderListPanel(m.width), m.renderDetailsPanel(m.width))
		return lipgloss.JoinVertical(lipgloss.Left, header, bar, body, m.renderStatusLine(m.width))
	}
	leftW := clampInt(m.width*3/5, 40, 90)
	rightW := m.width - leftW - 1
	body := lipgloss.JoinHorizontal(lipgloss.Top, m.renderListPanel(leftW), m.renderDetailsPanel(rightW))
	return lipgloss.JoinVertical(lipgloss.Left, header, bar, body, m.renderStatusLine(m.width))
}

func (m browseModel[T]) renderQueryBar() string {
	filter := model.StatusFilterAll
	if len(m.view.filters) > 0 {
		filter = m.view.filters[m.filterIdx]
	}
	search := m.search.View()
	if m.mode != browseModeSearch && strings.TrimSpace(m.search.Value()) == "" {
		search = browseMutedStyle.Render("search: (none, press /)")
	}
	return fmt.Sprintf("%s   status: [%s]", search, filter)
}

func (m browseModel[T]) renderListPanel(width int) string {
	items := m.list.Items()
	maxRows := clampInt(m.height-12, 4, 40)
	start, end := listWindow(len(items), m.cursor, maxRows)

	lines := make([]string, 0, maxRows+3)
	if len(items) == 0 {
		switch m.list.LoadStatus {
		case listsync.StatusLoading, listsync.StatusIdle:
			lines = append(lines, m.spinner.View()+" loading...")
		default:
			lines = append(lines, browseMutedStyle.Render("No results."))
		}
	}
	if start > 0 {
		lines = append(lines, browseMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		line := truncateRunes(m.view.row(items[i]), max(width-6, 10))
		if i == m.cursor {
			line = browseSelStyle.Width(max(width-4, 6)).Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(items) {
		lines = append(lines, browseMutedStyle.Render("..."))
	}

	footer := fmt.Sprintf("%d of %d", len(items), m.list.Total)
	if m.list.LoadStatus == listsync.StatusLoading {
		footer = m.spinner.View() + " " + footer
	} else if m.list.HasMore() {
		footer += "  (n: load more)"
	}
	lines = append(lines, "", browseMutedStyle.Render(footer))
	return browsePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m browseModel[T]) renderDetailsPanel(width int) string {
	item, ok := m.selected()
	lines := []string{"Details", ""}
	if !ok {
		lines = append(lines, browseMutedStyle.Render("Nothing selected."))
	} else {
		lines = append(lines, m.view.details(item)...)
	}
	for i := range lines {
		lines[i] = wrapOrTrim(lines[i], max(width-6, 12))
	}
	return browsePanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m browseModel[T]) renderStatusLine(width int) string {
	msg := strings.TrimSpace(m.notice)
	style := browseMutedStyle
	switch {
	case msg == "":
		msg = "Tip: typing a search waits for a pause before it asks the portal."
	case m.noticeErr:
		msg = "error: " + msg
		style = browseErrorStyle
	case strings.HasPrefix(msg, "application "):
		style = browseOKStyle
	}
	return style.Width(width).Render(truncateRunes(msg, max(width-2, 10)))
}

func (m browseModel[T]) viewStatusDialog() string {
	d := m.dialog
	lines := []string{
		browseTitleStyle.Render("Change status: application " + d.record.ID),
		kv("current", string(d.record.Status)),
		"",
	}
	options := make([]string, 0, len(d.options))
	for i, s := range d.options {
		label := string(s)
		if i == d.index {
			label = browseSelStyle.Render(label)
		}
		options = append(options, label)
	}
	prefix := "  "
	if d.focus == 0 {
		prefix = "> "
	}
	lines = append(lines, prefix+"to: "+strings.Join(options, "  "))
	lines = append(lines, d.date.View())
	if d.target() == model.StatusInterviewScheduled {
		lines = append(lines, browseMutedStyle.Render("  required; must be in the future"))
	}
	lines = append(lines, d.note.View(), "")
	switch {
	case d.saving:
		lines = append(lines, browseMutedStyle.Render("Saving..."))
	case d.err != "":
		lines = append(lines, browseErrorStyle.Render(d.err))
	default:
		lines = append(lines, browseMutedStyle.Render("left/right: pick status | tab: next field | enter: apply | esc: cancel"))
	}

	boxW := clampInt(m.width-8, 40, 90)
	panel := browsePanelStyle.Width(boxW).Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func (m browseModel[T]) viewLoginRequired() string {
	lines := []string{
		browseErrorStyle.Render("Login required"),
		"",
		"The portal rejected the session token and it was cleared.",
		"Set a new one, then browse again:",
		"",
		"  jobportal settings set --token <token>",
		"  " + browseMutedStyle.Render("or export PORTAL_TOKEN"),
		"",
		browseMutedStyle.Render("press any key to exit"),
	}
	panel := browsePanelStyle.Width(clampInt(m.width-8, 40, 70)).Render(strings.Join(lines, "\n"))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, panel)
}

func jobView(res portal.Resource) browseView[model.Job] {
	title := "jobportal browse " + string(res)
	return browseView[model.Job]{
		title:   title,
		filters: []string{model.StatusFilterAll, "Open", "Closed"},
		row: func(j model.Job) string {
			return fmt.Sprintf("%s  %s  %s", j.Title, browseMutedStyle.Render(j.Company), defaultIfEmpty(j.Location, ""))
		},
		details: func(j model.Job) []string {
			lines := []string{
				kv("id", j.ID),
				kv("title", j.Title),
				kv("company", defaultIfEmpty(j.Company, "-")),
				kv("location", defaultIfEmpty(j.Location, "-")),
				kv("status", defaultIfEmpty(j.Status, "-")),
				kv("salary", defaultIfEmpty(j.Salary, "-")),
			}
			if j.PostedAt != nil {
				lines = append(lines, kv("posted", j.PostedAt.Local().Format("2006-01-02")))
			}
			if strings.TrimSpace(j.Description) != "" {
				lines = append(lines, "", j.Description)
			}
			return lines
		},
	}
}

func applicationView() browseView[model.ApplicationRecord] {
	filters := []string{model.StatusFilterAll}
	for _, s := range model.ApplicationStatuses() {
		filters = append(filters, string(s))
	}
	return browseView[model.ApplicationRecord]{
		title:   "jobportal browse applications",
		filters: filters,
		row: func(a model.ApplicationRecord) string {
			return fmt.Sprintf("%s  %s  [%s]", defaultIfEmpty(a.CandidateName, a.CandidateID), browseMutedStyle.Render(defaultIfEmpty(a.JobTitle, a.JobID)), a.Status)
		},
		details: func(a model.ApplicationRecord) []string {
			lines := []string{
				kv("id", a.ID),
				kv("candidate", defaultIfEmpty(a.CandidateName, a.CandidateID)),
				kv("job", defaultIfEmpty(a.JobTitle, a.JobID)),
				kv("status", string(a.Status)),
				kv("interview", formatInterview(a.InterviewDate)),
			}
			if next := model.NextStatuses(a.Status); len(next) > 0 {
				names := make([]string, 0, len(next))
				for _, s := range next {
					names = append(names, string(s))
				}
				lines = append(lines, kv("next", strings.Join(names, ", ")))
			}
			for _, n := range a.Notes {
				lines = append(lines, "- "+n)
			}
			return lines
		},
		application: func(a model.ApplicationRecord) (model.ApplicationRecord, bool) {
			return a, true
		},
	}
}

func describeError(err error) string {
	switch model.KindOf(err) {
	case model.KindAuth:
		return "not signed in or token expired; set a new token with settings set --token"
	case model.KindNetwork:
		return "portal unreachable: " + err.Error()
	case model.KindTimeout:
		return "portal timed out; press r to retry"
	}
	return err.Error()
}
