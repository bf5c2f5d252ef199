package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/notepid/calcserv/internal/admin/app"
	"github.com/notepid/calcserv/internal/store"
	"github.com/notepid/calcserv/internal/user"
)

type usersModel struct {
	app *app.App

	width  int
	height int

	Done bool

	state usersState

	list list.Model
	err  error

	selected *user.User
	history  []store.HistoryEntry

	form *huh.Form

	createLogin    string
	createPassword string
	createRole     string
	createBalance  string
	createSave     bool

	balanceValue string
	balanceSave  bool

	roleChoice string
	roleSave   bool

	newPassword string
	pwConfirm   string
	pwSave      bool
}

type usersState int

const (
	usersStateList usersState = iota
	usersStateDetail
	usersStateCreate
	usersStateSetBalance
	usersStateSetRole
	usersStateResetPassword
	usersStateHistory
)

type userItem struct {
	id    int64
	title string
	desc  string
	kind  string
}

func (i userItem) Title() string       { return i.title }
func (i userItem) Description() string { return i.desc }
func (i userItem) FilterValue() string { return i.title }

func newUsersModel(a *app.App) *usersModel {
	m := &usersModel{app: a, state: usersStateList}
	m.reloadList()
	return m
}

func (m *usersModel) SetSize(w, h int) {
	m.width, m.height = w, h
	m.list.SetSize(w, h-2)
}

func (m *usersModel) Update(msg tea.Msg) tea.Cmd {
	if m.err != nil {
		if key, ok := msg.(tea.KeyMsg); ok {
			switch key.String() {
			case "esc", "q", "enter":
				m.err = nil
				m.state = usersStateList
				m.form = nil
				m.selected = nil
				m.reloadList()
			}
		}
		return nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			if m.state == usersStateList {
				m.Done = true
				return nil
			}
		case "esc":
			m.back()
			return nil
		}
	}

	switch m.state {
	case usersStateList:
		return m.updateList(msg)
	case usersStateDetail:
		return m.updateDetail(msg)
	case usersStateHistory:
		return nil
	default:
		return m.updateForm(msg)
	}
}

func (m *usersModel) updateList(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		it, ok := m.list.SelectedItem().(userItem)
		if !ok {
			return cmd
		}
		if it.kind == "create" {
			m.startCreate()
			return nil
		}

		u, err := m.app.Store.FetchUserByID(context.Background(), it.id)
		if err != nil {
			m.err = err
			return nil
		}
		m.selected = u
		m.state = usersStateDetail
		m.list = newActionList(m.width, m.height)
		return nil
	}

	return cmd
}

func (m *usersModel) updateDetail(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)

	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "enter" {
		it, ok := m.list.SelectedItem().(userItem)
		if !ok {
			return cmd
		}
		switch it.kind {
		case "set_balance":
			m.startSetBalance()
		case "set_role":
			m.startSetRole()
		case "reset_password":
			m.startResetPassword()
		case "history":
			m.loadHistory()
		case "back":
			m.back()
		}
		return nil
	}

	return cmd
}

func (m *usersModel) updateForm(msg tea.Msg) tea.Cmd {
	if m.form == nil {
		m.err = fmt.Errorf("internal error: form not initialized")
		return nil
	}
	updated, cmd := m.form.Update(msg)
	f, ok := updated.(*huh.Form)
	if !ok {
		m.err = fmt.Errorf("internal error: unexpected form model type")
		return nil
	}
	m.form = f
	if m.form.State != huh.StateCompleted {
		return cmd
	}

	ctx := context.Background()
	switch m.state {
	case usersStateCreate:
		if m.createSave {
			exists, err := m.app.Store.Exists(ctx, m.createLogin)
			if err != nil {
				m.err = err
				return nil
			}
			if exists {
				m.err = fmt.Errorf("login already exists")
				return nil
			}
			hash, err := user.HashPassword(m.createPassword)
			if err != nil {
				m.err = err
				return nil
			}
			balance, _ := strconv.ParseInt(strings.TrimSpace(m.createBalance), 10, 64)
			if _, err := m.app.Store.InsertNewUser(ctx, m.createLogin, hash, user.ParseRole(m.createRole), balance); err != nil {
				m.err = err
				return nil
			}
		}
		m.form = nil
		m.state = usersStateList
		m.reloadList()

	case usersStateSetBalance:
		if m.balanceSave && m.selected != nil {
			balance, err := strconv.ParseInt(strings.TrimSpace(m.balanceValue), 10, 64)
			if err != nil || balance < 0 {
				m.err = fmt.Errorf("balance must be a non-negative integer")
				return nil
			}
			if err := m.app.Store.UpdateUserBalance(ctx, m.selected.ID, balance); err != nil {
				m.err = err
				return nil
			}
		}
		m.refreshSelected()
		m.form = nil
		m.state = usersStateDetail
		m.list = newActionList(m.width, m.height)

	case usersStateSetRole:
		if m.roleSave && m.selected != nil {
			if err := m.app.Store.UpdateUserRole(ctx, m.selected.ID, user.ParseRole(m.roleChoice)); err != nil {
				m.err = err
				return nil
			}
		}
		m.refreshSelected()
		m.form = nil
		m.state = usersStateDetail
		m.list = newActionList(m.width, m.height)

	case usersStateResetPassword:
		if m.pwSave && m.selected != nil {
			hash, err := user.HashPassword(m.newPassword)
			if err != nil {
				m.err = err
				return nil
			}
			if err := m.app.Store.UpdateUserPassword(ctx, m.selected.ID, hash); err != nil {
				m.err = err
				return nil
			}
		}
		m.form = nil
		m.state = usersStateDetail
		m.list = newActionList(m.width, m.height)
	}
	return nil
}

func (m *usersModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Users error: %v\n\nPress Enter/Esc to go back.", m.err)
	}

	switch m.state {
	case usersStateList:
		m.list.Title = "Users"
		return m.list.View() + "\n(q to quit, enter to select)"
	case usersStateDetail:
		if m.selected == nil {
			return "No user selected\n\n(esc to go back)"
		}
		header := titleStyle.Render(fmt.Sprintf("User: %s (%s)", m.selected.Login, m.selected.Role)) + "\n"
		meta := fmt.Sprintf("Balance: %d\nCreated: %s\n\n",
			m.selected.Balance, m.selected.CreatedAt.Format("2006-01-02 15:04"),
		)
		m.list.Title = "Actions"
		return header + meta + m.list.View() + "\n(esc to go back)"
	case usersStateHistory:
		return m.historyView()
	default:
		return m.form.View() + "\n\n(esc to go back)"
	}
}

func (m *usersModel) historyView() string {
	if m.selected == nil {
		return "No user selected\n\n(esc to go back)"
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Calculation history: %s", m.selected.Login)) + "\n\n")
	if len(m.history) == 0 {
		b.WriteString(dimStyle.Render("(no calculations recorded)") + "\n")
	}
	for _, e := range m.history {
		b.WriteString(fmt.Sprintf("%s  %s = %s\n",
			dimStyle.Render(e.CreatedAt.Format("2006-01-02 15:04:05")), e.Expression, e.Result))
	}
	b.WriteString("\n(esc to go back)")
	return b.String()
}

func (m *usersModel) reloadList() {
	users, err := m.app.Store.ListUsers(context.Background())
	if err != nil {
		m.err = err
		return
	}

	items := make([]list.Item, 0, len(users)+1)
	items = append(items, userItem{title: "+ Create new user", desc: "Add a new account", kind: "create"})
	for _, u := range users {
		desc := fmt.Sprintf("%s • balance %d", u.Role, u.Balance)
		items = append(items, userItem{id: u.ID, title: u.Login, desc: desc, kind: "user"})
	}

	m.list = list.New(items, list.NewDefaultDelegate(), m.width, m.height-2)
	m.list.SetShowStatusBar(false)
	m.list.SetFilteringEnabled(true)
	m.list.SetShowHelp(true)
	m.list.Title = "Users"
}

func newActionList(w, h int) list.Model {
	items := []list.Item{
		userItem{title: "Set balance", desc: "Overwrite the stored balance", kind: "set_balance"},
		userItem{title: "Change role", desc: "ADMIN or USER", kind: "set_role"},
		userItem{title: "Reset password", desc: "Set a new password", kind: "reset_password"},
		userItem{title: "Calculation history", desc: "Recent calc requests", kind: "history"},
		userItem{title: "Back", desc: "Return to users list", kind: "back"},
	}
	l := list.New(items, list.NewDefaultDelegate(), w, h-8)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(true)
	return l
}

func (m *usersModel) startCreate() {
	m.state = usersStateCreate
	m.createLogin = ""
	m.createPassword = ""
	m.createRole = string(user.RoleUser)
	m.createBalance = strconv.FormatInt(m.app.Config.Calc.DefaultBalance, 10)
	m.createSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Login").Value(&m.createLogin).Validate(nonEmpty("login")),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&m.createPassword).Validate(nonEmpty("password")),
			huh.NewSelect[string]().Title("Role").Options(
				huh.NewOption("User", string(user.RoleUser)),
				huh.NewOption("Admin", string(user.RoleAdmin)),
			).Value(&m.createRole),
			huh.NewInput().Title("Initial balance").Value(&m.createBalance).Validate(nonNegativeInt("balance")),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Create user?").Value(&m.createSave),
		),
	)
}

func (m *usersModel) startSetBalance() {
	m.state = usersStateSetBalance
	m.balanceValue = strconv.FormatInt(m.selected.Balance, 10)
	m.balanceSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Balance").Value(&m.balanceValue).Validate(nonNegativeInt("balance")),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Save balance?").Value(&m.balanceSave),
		),
	)
}

func (m *usersModel) startSetRole() {
	m.state = usersStateSetRole
	m.roleChoice = string(m.selected.Role)
	m.roleSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Role").Options(
				huh.NewOption("User", string(user.RoleUser)),
				huh.NewOption("Admin", string(user.RoleAdmin)),
			).Value(&m.roleChoice),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Save role?").Value(&m.roleSave),
		),
	)
}

func (m *usersModel) startResetPassword() {
	m.state = usersStateResetPassword
	m.newPassword = ""
	m.pwConfirm = ""
	m.pwSave = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).Value(&m.newPassword).Validate(nonEmpty("password")),
			huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&m.pwConfirm).Validate(func(s string) error {
				if s != m.newPassword {
					return fmt.Errorf("passwords do not match")
				}
				return nil
			}),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Reset password?").Value(&m.pwSave),
		),
	)
}

func (m *usersModel) loadHistory() {
	entries, err := m.app.Store.RecentHistory(context.Background(), m.selected.ID, 50)
	if err != nil {
		m.err = err
		return
	}
	m.history = entries
	m.state = usersStateHistory
}

func (m *usersModel) back() {
	switch m.state {
	case usersStateList:
		m.Done = true
	case usersStateDetail:
		m.state = usersStateList
		m.selected = nil
		m.form = nil
		m.reloadList()
	default:
		m.state = usersStateDetail
		m.form = nil
		m.list = newActionList(m.width, m.height)
	}
}

func (m *usersModel) refreshSelected() {
	if m.selected == nil {
		return
	}
	u, err := m.app.Store.FetchUserByID(context.Background(), m.selected.ID)
	if err == nil {
		m.selected = u
	}
}

func nonEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func nonNegativeInt(field string) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return fmt.Errorf("%s must be a number", field)
		}
		if v < 0 {
			return fmt.Errorf("%s must be >= 0", field)
		}
		return nil
	}
}
