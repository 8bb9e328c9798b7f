package protocol

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestDecodeCommands(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Command
	}{
		{"create poll", `{"type":"poll","object":{"poll_title":"lunch"}}`, CreatePoll{PollTitle: "lunch"}},
		{"add option", `{"type":"poll_option","object":{"poll_title":"lunch","poll_option_title":"pizza"}}`, AddOption{PollTitle: "lunch", OptionTitle: "pizza"}},
		{"vote", `{"type":"vote","object":{"poll_title":"lunch","poll_option_title":"pizza"}}`, CastVote{PollTitle: "lunch", OptionTitle: "pizza"}},
		{"close poll", `{"type":"poll_close","object":{"poll_title":"lunch"}}`, ClosePoll{PollTitle: "lunch"}},
		{"extra string fields ignored", `{"type":"poll","object":{"poll_title":"lunch","note":"x"}}`, CreatePoll{PollTitle: "lunch"}},
		{"elevate", `{"type":"elevate","object":3}`, Elevate{Value: 3}},
		{"recede", `{"type":"recede","object":0}`, Recede{Value: 0}},
		{"instant object", `{"type":"instant","object":{"emoji":"👍"}}`, Signal{Type: TypeInstant, Object: json.RawMessage(`{"emoji":"👍"}`)}},
		{"raise null", `{"type":"raise","object":null}`, Signal{Type: TypeRaise, Object: json.RawMessage(`null`)}},
		{"lower string", `{"type":"lower","object":"bye"}`, Signal{Type: TypeLower, Object: json.RawMessage(`"bye"`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"not json", `hello`, ErrMalformed},
		{"array", `[1,2]`, ErrMalformed},
		{"unknown type", `{"type":"dance","object":{}}`, ErrUnrecognized},
		{"missing type", `{"object":{"poll_title":"x"}}`, ErrUnrecognized},
		{"non-string type", `{"type":7,"object":null}`, ErrMalformed},
		{"upper-case keys", `{"TYPE":"raise","Object":1}`, ErrUnrecognized},
		{"upper-case object key", `{"type":"raise","Object":1}`, ErrDeprecated},
		{"poll option missing option title", `{"type":"poll_option","object":{"poll_title":"lunch"}}`, ErrUnrecognized},
		{"close with numeric field", `{"type":"poll_close","object":{"poll_title":1}}`, ErrUnrecognized},
		{"elevate negative", `{"type":"elevate","object":-1}`, ErrDeprecated},
		{"elevate float", `{"type":"elevate","object":1.5}`, ErrDeprecated},
		{"recede wrong shape", `{"type":"recede","object":{"n":1}}`, ErrDeprecated},
		{"vote missing option title", `{"type":"vote","object":{"poll_title":"lunch"}}`, ErrDeprecated},
		{"raise without object", `{"type":"raise"}`, ErrDeprecated},
		{"legacy polloption", `{"type":"polloption","poll_title":"lunch","poll_option_title":"pizza"}`, ErrDeprecated},
		{"legacy closepoll", `{"type":"closepoll","poll_title":"lunch"}`, ErrDeprecated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := Decode([]byte(tt.frame))
			if cmd != nil {
				t.Fatalf("Decode() = %#v, want no command", cmd)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	frame, err := Encode(EventElevate, LevelEvent{OwnerID: 2, Value: 1, Level: 4})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	want := `{"event":"elevate","data":{"owner_id":2,"value":1,"level":4}}`
	if string(frame) != want {
		t.Errorf("Encode() = %s, want %s", frame, want)
	}

	if _, err := Encode(EventInstant, map[string]interface{}{"bad": func() {}}); err == nil {
		t.Error("Encode() should fail for unmarshalable payloads")
	}
}
