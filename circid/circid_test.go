package circid_test

import (
	"net"
	"strings"
	"testing"

	"github.com/m-lab/go/rtx"

	"github.com/channelaccess/catcp/circid"
)

func TestFromTCPConnDistinctAndPrefixed(t *testing.T) {
	// We use the less-used TCP versions of Listen and Dial because we want
	// to be sure we are getting real, distinct TCP sockets.
	localAddr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	rtx.Must(err, "No localhost")
	listener, err := net.ListenTCP("tcp", localAddr)
	rtx.Must(err, "Could not make TCP listener")
	defer listener.Close()

	local1, err := net.Dial("tcp", listener.Addr().String())
	rtx.Must(err, "Could not connect to myself")
	defer local1.Close()
	local2, err := net.Dial("tcp", listener.Addr().String())
	rtx.Must(err, "Could not connect to myself")
	defer local2.Close()

	conn1, err := listener.AcceptTCP()
	rtx.Must(err, "Could not accept conn1")
	defer conn1.Close()
	conn2, err := listener.AcceptTCP()
	rtx.Must(err, "Could not accept conn2")
	defer conn2.Close()

	id1, err := circid.FromTCPConn(conn1)
	rtx.Must(err, "Could not get id for conn1")
	id2, err := circid.FromTCPConn(conn2)
	rtx.Must(err, "Could not get id for conn2")

	if id1 == id2 {
		t.Error("circuit IDs must not be the same for distinct sockets")
	}
	if !strings.HasPrefix(id1.String(), "circ_") || !strings.HasPrefix(id2.String(), "circ_") {
		t.Errorf("IDs must carry the circ_ prefix, got %q and %q", id1, id2)
	}
}
