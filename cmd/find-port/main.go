// Command find-port helps identify which serial device path corresponds to
// a physical USB-to-serial adapter: it snapshots the currently enumerated
// ports, asks the operator to unplug the cable, snapshots again, and
// reports whichever path disappeared (§6.3).
package main

import (
	"bufio"
	"fmt"
	"os"

	"go.bug.st/serial/enumerator"
)

func enumerateSerialPorts() ([]string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	paths := make([]string, 0, len(ports))
	for _, p := range ports {
		paths = append(paths, p.Name)
	}
	return paths, nil
}

func toSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}

func main() {
	before, err := enumerateSerialPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Found %d serial ports. Disconnect the motor bus USB cable, then press Enter.\n", len(before))
	bufio.NewReader(os.Stdin).ReadString('\n')

	after, err := enumerateSerialPorts()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	afterSet := toSet(after)

	var disappeared []string
	for _, p := range before {
		if !afterSet[p] {
			disappeared = append(disappeared, p)
		}
	}

	switch len(disappeared) {
	case 1:
		fmt.Printf("The port was: %s\n", disappeared[0])
		os.Exit(0)
	case 0:
		fmt.Fprintln(os.Stderr, "No port disappeared; is the right cable unplugged?")
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "More than one port disappeared: %v\n", disappeared)
		os.Exit(1)
	}
}
