package dns

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// parseNameservers extracts the nameserver addresses from resolv.conf content.
func parseNameservers(r io.Reader) ([]net.IP, error) {
	var ips []net.IP
	scanner := bufio.NewScanner(r)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Fields(line)
		if fields[0] != "nameserver" {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("missing nameserver address at line %d", lineNum)
		}

		// scoped IPv6 nameservers carry a zone
		host := fields[1]
		if i := strings.IndexByte(host, '%'); i >= 0 {
			host = host[:i]
		}
		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address at line %d: %s", lineNum, fields[1])
		}
		ips = append(ips, ip)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return ips, nil
}

// ReadNameservers loads the nameservers of a resolv.conf file.
func ReadNameservers(path string) ([]net.IP, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer f.Close()

	ips, err := parseNameservers(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return ips, nil
}

func renderResolvConf(servers []net.IP) []byte {
	var buf bytes.Buffer
	buf.WriteString("# generated by ltem for the lte uplink\n")
	for _, ip := range servers {
		fmt.Fprintf(&buf, "nameserver %s\n", ip)
	}
	return buf.Bytes()
}
