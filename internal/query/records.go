package query

import (
	"strconv"
	"strings"
)

// Record is one parsed entity: whitespace-separated key=value tokens
// with the values unescaped.
type Record map[string]string

func parseRecord(segment string) Record {
	row := make(Record)
	for _, token := range strings.Fields(segment) {
		key, value, ok := strings.Cut(token, "=")
		if !ok {
			row[token] = ""
			continue
		}
		row[key] = Unescape(value)
	}
	return row
}

func (r Record) str(key string) string {
	return r[key]
}

func (r Record) int64(key string) (int64, error) {
	raw, ok := r[key]
	if !ok {
		return 0, parseError(key, "", strconv.ErrSyntax)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, parseError(key, raw, err)
	}
	return v, nil
}

// WhoAmI is the bot's own identity and placement.
type WhoAmI struct {
	ClientID  int64
	ChannelID int64
}

func whoAmIFromRecord(row Record) (WhoAmI, error) {
	clid, err := row.int64("clid")
	if err != nil {
		return WhoAmI{}, err
	}
	cid, err := row.int64("cid")
	if err != nil {
		return WhoAmI{}, err
	}
	return WhoAmI{ClientID: clid, ChannelID: cid}, nil
}

// Client is one connected client record.
type Client struct {
	ClientID   int64
	ChannelID  int64
	DatabaseID int64
	Type       int64
	Nickname   string
}

func clientFromRecord(row Record) (Client, error) {
	clid, err := row.int64("clid")
	if err != nil {
		return Client{}, err
	}
	cid, err := row.int64("cid")
	if err != nil {
		return Client{}, err
	}
	dbid, err := row.int64("client_database_id")
	if err != nil {
		return Client{}, err
	}
	ctype, err := row.int64("client_type")
	if err != nil {
		return Client{}, err
	}
	return Client{
		ClientID:   clid,
		ChannelID:  cid,
		DatabaseID: dbid,
		Type:       ctype,
		Nickname:   row.str("client_nickname"),
	}, nil
}

// Channel is one channel record.
type Channel struct {
	ID           int64
	ParentID     int64
	Order        int64
	Name         string
	TotalClients int64
}

func channelFromRecord(row Record) (Channel, error) {
	cid, err := row.int64("cid")
	if err != nil {
		return Channel{}, err
	}
	pid, err := row.int64("pid")
	if err != nil {
		return Channel{}, err
	}
	total, err := row.int64("total_clients")
	if err != nil {
		return Channel{}, err
	}
	// channel_order is absent in some listings; default to zero.
	order, _ := row.int64("channel_order")
	return Channel{
		ID:           cid,
		ParentID:     pid,
		Order:        order,
		Name:         row.str("channel_name"),
		TotalClients: total,
	}, nil
}

// ClientVariable is one queried client property.
type ClientVariable struct {
	Description string
}

func clientVariableFromRecord(row Record) (ClientVariable, error) {
	return ClientVariable{Description: row.str("client_description")}, nil
}

// ConnectInfo reports the server the console is attached to.
type ConnectInfo struct {
	IP   string
	Port int64
}

func connectInfoFromRecord(row Record) (ConnectInfo, error) {
	port, err := row.int64("port")
	if err != nil {
		return ConnectInfo{}, err
	}
	return ConnectInfo{IP: row.str("ip"), Port: port}, nil
}
