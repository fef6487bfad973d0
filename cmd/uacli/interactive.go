package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/opcfoundry/opcua-runtime/client"
	"github.com/opcfoundry/opcua-runtime/ua"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2B6CB0")).
			Padding(0, 1)

	nodeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#2B6CB0"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type browserState int

const (
	stateBrowse browserState = iota
	stateShowValue
	stateGoto
)

type crumb struct {
	id   ua.NodeID
	name string
}

type browserModel struct {
	err      error
	client   *client.Client
	endpoint string
	demo     bool
	pageSize int

	path     []crumb
	refs     []ua.ReferenceDescription
	selected int
	value    string
	input    textinput.Model
	state    browserState
}

type connectedMsg struct {
	err    error
	client *client.Client
}

type browsedMsg struct {
	err  error
	refs []ua.ReferenceDescription
}

type valueMsg struct {
	err   error
	value string
}

func newBrowserModel(endpoint string, demo bool, pageSize int) *browserModel {
	return &browserModel{
		endpoint: endpoint,
		demo:     demo,
		pageSize: pageSize,
		path:     []crumb{{id: ua.NodeIDObjectsFolder, name: "Objects"}},
	}
}

func (m *browserModel) Init() tea.Cmd {
	return m.connect
}

func (m *browserModel) connect() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	c, err := connect(ctx, m.endpoint, m.demo, m.pageSize, zap.NewNop())
	return connectedMsg{client: c, err: err}
}

func (m *browserModel) current() crumb { return m.path[len(m.path)-1] }

func (m *browserModel) browseCurrent() tea.Cmd {
	c := m.client
	node := m.current().id
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		refs, err := c.BrowseAll(ctx, node, client.BrowseOptions{IncludeSubtypes: true})
		return browsedMsg{refs: refs, err: err}
	}
}

func (m *browserModel) readSelected() tea.Cmd {
	if len(m.refs) == 0 {
		return nil
	}
	c := m.client
	node := m.refs[m.selected].NodeID.NodeID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		v, err := c.ReadValue(ctx, node)
		if err != nil {
			return valueMsg{err: err}
		}
		return valueMsg{value: v.String()}
	}
}

func (m *browserModel) gotoNode(id ua.NodeID) tea.Cmd {
	m.path = append(m.path, crumb{id: id, name: id.String()})
	m.selected = 0
	return m.browseCurrent()
}

func (m *browserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateGoto {
			switch msg.String() {
			case "enter":
				id, err := ua.ParseNodeID(m.input.Value())
				m.state = stateBrowse
				if err != nil {
					m.err = err
					return m, nil
				}
				m.err = nil
				return m, m.gotoNode(id)
			case "esc":
				m.state = stateBrowse
				return m, nil
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			if m.client != nil {
				_ = m.client.Close()
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.refs)-1 {
				m.selected++
			}

		case "enter", "right", "l":
			if m.state == stateShowValue {
				m.state = stateBrowse
				m.value = ""
				return m, nil
			}
			if len(m.refs) == 0 {
				return m, nil
			}
			ref := m.refs[m.selected]
			if ref.NodeClass == ua.NodeClassVariable {
				return m, m.readSelected()
			}
			m.path = append(m.path, crumb{id: ref.NodeID.NodeID, name: ref.BrowseName.Name})
			m.selected = 0
			return m, m.browseCurrent()

		case "r":
			if m.state == stateBrowse {
				return m, m.readSelected()
			}

		case "backspace", "left", "h":
			if m.state == stateShowValue {
				m.state = stateBrowse
				m.value = ""
				return m, nil
			}
			if len(m.path) > 1 {
				m.path = m.path[:len(m.path)-1]
				m.selected = 0
				return m, m.browseCurrent()
			}

		case "g":
			if m.state == stateBrowse {
				ti := textinput.New()
				ti.Placeholder = "ns=1;i=1001"
				ti.Prompt = "node id: "
				ti.Width = 40
				ti.Focus()
				m.input = ti
				m.state = stateGoto
			}
		}

	case connectedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.client = msg.client
		return m, m.browseCurrent()

	case browsedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.refs = msg.refs
			if m.selected >= len(m.refs) {
				m.selected = 0
			}
		}

	case valueMsg:
		m.err = msg.err
		m.value = msg.value
		m.state = stateShowValue
	}

	return m, nil
}

func (m *browserModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("OPC UA Browser"))
	b.WriteString(" ")
	b.WriteString(m.endpoint)
	b.WriteString("\n\n")

	if m.client == nil {
		if m.err != nil {
			return b.String() + errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return b.String() + "Connecting..."
	}

	names := make([]string, len(m.path))
	for i, c := range m.path {
		names[i] = c.name
	}
	b.WriteString(nodeStyle.Render(strings.Join(names, " / ")))
	b.WriteString("\n\n")

	switch m.state {
	case stateBrowse:
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		if len(m.refs) == 0 {
			b.WriteString(helpStyle.Render("(no references)"))
			b.WriteString("\n")
		}
		for i, ref := range m.refs {
			line := fmt.Sprintf("%-24s %-10s %s",
				ref.BrowseName.Name,
				classStyle.Render(ref.NodeClass.String()),
				ref.NodeID.NodeID)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter descend/read • r read • backspace up • g goto • q quit"))

	case stateShowValue:
		if len(m.refs) > 0 {
			b.WriteString(fmt.Sprintf("Value of %s:\n\n", nodeStyle.Render(m.refs[m.selected].BrowseName.Name)))
		}
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(valueStyle.Render(m.value))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))

	case stateGoto:
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter browse • esc back"))
	}

	return b.String()
}

func runInteractive(endpoint string, demo bool, pageSize int) error {
	p := tea.NewProgram(newBrowserModel(endpoint, demo, pageSize), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
