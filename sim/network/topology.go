package network

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// TopoLink is one bidirectional connection from a topology file.
type TopoLink struct {
	A        string
	B        string
	Baud     float64
	DelayMs  float64
	MTUBytes int
}

// Topology is the parsed form of a network description file: router names
// and the links between them.
type Topology struct {
	Routers []string
	Links   []TopoLink
}

// ParseTopologyFile reads a topology description from disk.
func ParseTopologyFile(path string) (*Topology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening topology file: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only file; close error is not actionable
	topo, err := ParseTopology(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return topo, nil
}

// ParseTopology parses the text format: a line with one token declares a
// router, a line `A B baudBps delayMs mtuBytes` declares a link, and `#`
// starts a comment.
func ParseTopology(r io.Reader) (*Topology, error) {
	topo := &Topology{}
	known := make(map[string]bool)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		switch len(fields) {
		case 0:
			continue
		case 1:
			name := fields[0]
			if known[name] {
				return nil, fmt.Errorf("line %d: duplicate router %q", lineNo, name)
			}
			known[name] = true
			topo.Routers = append(topo.Routers, name)
		case 5:
			baud, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad baud rate %q", lineNo, fields[2])
			}
			delay, err := strconv.ParseFloat(fields[3], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad delay %q", lineNo, fields[3])
			}
			mtu, err := strconv.Atoi(fields[4])
			if err != nil {
				return nil, fmt.Errorf("line %d: bad MTU %q", lineNo, fields[4])
			}
			for _, name := range fields[:2] {
				if !known[name] {
					return nil, fmt.Errorf("line %d: link references undeclared router %q", lineNo, name)
				}
			}
			topo.Links = append(topo.Links, TopoLink{A: fields[0], B: fields[1], Baud: baud, DelayMs: delay, MTUBytes: mtu})
		default:
			return nil, fmt.Errorf("line %d: expected 1 or 5 fields, got %d", lineNo, len(fields))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(topo.Routers) == 0 {
		return nil, fmt.Errorf("topology declares no routers")
	}
	return topo, nil
}
