package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

// SelectDevice shows an interactive picker on the terminal and returns the
// chosen device. With a single device it returns that one without prompting.
func SelectDevice(ctx Context) (*DeviceInfo, error) {
	devices, err := ctx.Devices()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if len(devices) == 1 {
		return &devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	i, err := pickDevice(os.Stdin, os.Stdout, devices)
	fmt.Fprint(os.Stdout, "\r\n")
	if err != nil {
		return nil, err
	}
	return &devices[i], nil
}

func renderDevices(w io.Writer, devices []DeviceInfo, cursor int) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprint(w, "Select microphone (↑/↓, Enter to confirm):\r\n\r\n")
	for i, d := range devices {
		btTag := ""
		if IsBluetooth(d.Name) {
			btTag = " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, btTag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, btTag)
		}
	}
}

// pickDevice reads raw key presses from r until Enter and returns the
// selected index.
func pickDevice(r io.Reader, w io.Writer, devices []DeviceInfo) (int, error) {
	cursor := 0
	renderDevices(w, devices, cursor)

	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}

		if n == 1 {
			switch buf[0] {
			case 13: // Enter
				return cursor, nil
			case 3, 'q': // Ctrl+C
				return 0, ErrSelectionCancelled
			case 'j':
				cursor = min(cursor+1, len(devices)-1)
			case 'k':
				cursor = max(cursor-1, 0)
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A':
				cursor = max(cursor-1, 0)
			case 'B':
				cursor = min(cursor+1, len(devices)-1)
			}
		}

		fmt.Fprintf(w, "\x1b[%dA", len(devices)+2)
		renderDevices(w, devices, cursor)
	}
}
