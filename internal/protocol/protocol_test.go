package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameEncoding(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  string
	}{
		{"submit name", SubmitName, "SUBMIT_NAME"},
		{"name accepted", NameAccepted, "NAME_ACCEPTED"},
		{"force exit", ForceExit, "FORCE_EXIT"},
		{"broadcast", Broadcast{Sender: "alice", Body: "hi"}, "MESSAGE alice: hi"},
		{"directed single", Directed{Sender: "alice", Recipients: []string{"bob"}, Body: "psst"}, "MESSAGE alice>>bob: psst"},
		{"directed many", Directed{Sender: "alice", Recipients: []string{"bob", "carol"}, Body: "psst"}, "MESSAGE alice>>bob,carol: psst"},
		{"join notice", JoinNotice("bob"), "MESSAGE [Server]: bob has joined the chat."},
		{"leave notice", LeaveNotice("bob"), "MESSAGE [Server]: bob has left the chat."},
		{"user list", UserListSnapshot{Handles: []string{"alice", "bob"}}, "USER_LIST alice,bob"},
		{"empty user list", UserListSnapshot{}, "USER_LIST"},
		{"recipient not found", RecipientNotFound("ghost"), "ERROR User 'ghost' not found."},
		{"malformed", MalformedDirected, "ERROR Invalid P2P message format."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.frame.Encode())
		})
	}
}

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		handle string
		valid  bool
	}{
		{"alice", true},
		{"Alice", true},
		{"zoë", true},
		{"", false},
		{"a,b", false},
		{"a:b", false},
		{"[Server]", false},
		{"a>b", false},
		{"two words", false},
		{"tab\there", false},
		{"abcdefghijklmnop", true},
		{"abcdefghijklmnopq", false},
	}

	for _, tt := range tests {
		t.Run(tt.handle, func(t *testing.T) {
			err := ValidateHandle(tt.handle, 16)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidHandle)
		})
	}
}
