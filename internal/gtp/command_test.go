package gtp

import (
	"errors"
	"testing"
)

func TestBuildCommand(t *testing.T) {
	id := "7"
	cases := []struct {
		name    string
		cmdName string
		args    []string
		id      *string
		want    string
		wantErr error
	}{
		{name: "no id no args", cmdName: "name", want: "name"},
		{name: "with args", cmdName: "play", args: []string{"B", "D4"}, want: "play B D4"},
		{name: "with id", cmdName: "boardsize", args: []string{"19"}, id: &id, want: "7 boardsize 19"},
		{name: "empty name", cmdName: "", wantErr: ErrInvalidArgument},
		{name: "name with whitespace", cmdName: "board size", wantErr: ErrInvalidArgument},
		{name: "arg with whitespace", cmdName: "play", args: []string{"B D4"}, wantErr: ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BuildCommand(tc.cmdName, tc.args, tc.id)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildCommandBadIdentifier(t *testing.T) {
	bad := "12a"
	_, err := BuildCommand("name", nil, &bad)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestParseCommandLine(t *testing.T) {
	cases := []struct {
		line    string
		want    Command
		wantErr error
	}{
		{line: "name", want: Command{Name: "name"}},
		{line: "play B D4", want: Command{Name: "play", Args: []string{"B", "D4"}}},
		{line: "7 boardsize 19", want: Command{HasID: true, ID: "7", Name: "boardsize", Args: []string{"19"}}},
		{line: "PLAY b d4", want: Command{Name: "play", Args: []string{"b", "d4"}}},
		{line: "  name   arg1  arg2 ", want: Command{Name: "name", Args: []string{"arg1", "arg2"}}},
		{line: "", wantErr: ErrInvalidArgument},
		{line: "   ", wantErr: ErrInvalidArgument},
		{line: "123", wantErr: ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			got, err := ParseCommandLine(tc.line)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.HasID != tc.want.HasID || got.ID != tc.want.ID || got.Name != tc.want.Name || len(got.Args) != len(tc.want.Args) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
			for i := range got.Args {
				if got.Args[i] != tc.want.Args[i] {
					t.Fatalf("arg[%d] = %q, want %q", i, got.Args[i], tc.want.Args[i])
				}
			}
		})
	}
}

// TestCommandRoundTrip checks the codec invariant from §8: parsing a built
// command recovers the identifier, name, and argument tuple.
func TestCommandRoundTrip(t *testing.T) {
	id := "42"
	cases := []struct {
		name string
		args []string
		id   *string
	}{
		{name: "name"},
		{name: "play", args: []string{"B", "D4"}},
		{name: "boardsize", args: []string{"19", "19"}, id: &id},
	}
	for _, tc := range cases {
		line, err := BuildCommand(tc.name, tc.args, tc.id)
		if err != nil {
			t.Fatalf("BuildCommand: %v", err)
		}
		got, err := ParseCommandLine(line)
		if err != nil {
			t.Fatalf("ParseCommandLine(%q): %v", line, err)
		}
		if got.Name != tc.name {
			t.Errorf("name = %q, want %q", got.Name, tc.name)
		}
		wantHasID := tc.id != nil
		if got.HasID != wantHasID {
			t.Errorf("hasID = %v, want %v", got.HasID, wantHasID)
		}
		if wantHasID && got.ID != *tc.id {
			t.Errorf("id = %q, want %q", got.ID, *tc.id)
		}
		if len(got.Args) != len(tc.args) {
			t.Fatalf("args = %v, want %v", got.Args, tc.args)
		}
		for i := range got.Args {
			if got.Args[i] != tc.args[i] {
				t.Errorf("arg[%d] = %q, want %q", i, got.Args[i], tc.args[i])
			}
		}
	}
}
