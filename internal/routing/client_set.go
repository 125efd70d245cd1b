package routing

import (
	"net"

	"github.com/cespare/xxhash/v2"
)

// clientSet tracks the client addresses that currently have a rule installed.
type clientSet struct {
	byHash map[uint64]net.IP
}

func newClientSet() *clientSet {
	return &clientSet{byHash: make(map[uint64]net.IP)}
}

func clientKey(ip net.IP) uint64 {
	return xxhash.Sum64(ip.To16())
}

func (s *clientSet) add(ip net.IP) {
	s.byHash[clientKey(ip)] = ip
}

func (s *clientSet) remove(ip net.IP) {
	delete(s.byHash, clientKey(ip))
}

func (s *clientSet) contains(ip net.IP) bool {
	_, ok := s.byHash[clientKey(ip)]
	return ok
}

func (s *clientSet) list() []net.IP {
	out := make([]net.IP, 0, len(s.byHash))
	for _, ip := range s.byHash {
		out = append(out, ip)
	}
	return out
}

func (s *clientSet) len() int {
	return len(s.byHash)
}

func (s *clientSet) reset() {
	s.byHash = make(map[uint64]net.IP)
}
