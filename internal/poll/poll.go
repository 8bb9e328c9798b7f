// Package poll implements the room poll lifecycle: options, votes and closing.
package poll

import (
	"errors"
	"strconv"

	"github.com/vimeet/server/internal/protocol"
)

var (
	// ErrClosed is returned for any mutation of a closed poll.
	ErrClosed = errors.New("poll is closed")
	// ErrUnknownOption is returned when voting for an option the poll does not have.
	ErrUnknownOption = errors.New("poll option not found")
	// ErrNotOwner is returned when someone other than the owner closes the poll.
	ErrNotOwner = errors.New("only the poll owner can close it")
)

// Poll is a titled, room-scoped vote. Open until Close succeeds, then Closed for good.
type Poll struct {
	Title     string
	Room      string
	OwnerID   uint64
	OwnerName string
	Options   []string          // insertion order, not deduplicated
	Votes     map[uint64]string // voter session id -> option title
	Closed    bool
}

// New creates an open poll with no options and no votes.
func New(title, room string, ownerID uint64, ownerName string) *Poll {
	return &Poll{
		Title:     title,
		Room:      room,
		OwnerID:   ownerID,
		OwnerName: ownerName,
		Options:   []string{},
		Votes:     make(map[uint64]string),
	}
}

// AddOption appends an option title.
func (p *Poll) AddOption(title string) error {
	if p.Closed {
		return ErrClosed
	}
	p.Options = append(p.Options, title)
	return nil
}

// Vote sets the voter's choice, replacing any earlier one.
func (p *Poll) Vote(voterID uint64, option string) error {
	if p.Closed {
		return ErrClosed
	}
	if !p.HasOption(option) {
		return ErrUnknownOption
	}
	p.Votes[voterID] = option
	return nil
}

// Close ends the poll. Only the owner may close it.
func (p *Poll) Close(senderID uint64) error {
	if p.Closed {
		return ErrClosed
	}
	if senderID != p.OwnerID {
		return ErrNotOwner
	}
	p.Closed = true
	return nil
}

// HasOption reports whether option is one of the poll's option titles.
func (p *Poll) HasOption(option string) bool {
	for _, o := range p.Options {
		if o == option {
			return true
		}
	}
	return false
}

// Tally returns the vote count per option, in option order.
// Duplicate option titles each report the same count.
func (p *Poll) Tally() []int {
	counts := make(map[string]int, len(p.Options))
	for _, choice := range p.Votes {
		counts[choice]++
	}
	out := make([]int, len(p.Options))
	for i, o := range p.Options {
		out[i] = counts[o]
	}
	return out
}

// View renders the poll for outbound events.
func (p *Poll) View() protocol.PollView {
	tally := p.Tally()
	options := make([]protocol.OptionView, len(p.Options))
	for i, o := range p.Options {
		options[i] = protocol.OptionView{Title: o, Votes: tally[i]}
	}
	votes := make(map[string]string, len(p.Votes))
	for voter, choice := range p.Votes {
		votes[strconv.FormatUint(voter, 10)] = choice
	}
	return protocol.PollView{
		Title:     p.Title,
		Room:      p.Room,
		OwnerID:   p.OwnerID,
		OwnerName: p.OwnerName,
		Options:   options,
		Votes:     votes,
		Closed:    p.Closed,
	}
}
