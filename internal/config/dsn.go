package config

import (
	"net"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DSNValue returns the explicit DSN or one assembled from the discrete fields.
func (c DatabaseRuntimeConfig) DSNValue() string {
	if v := strings.TrimSpace(c.DSN); v != "" {
		return v
	}

	host := firstNonEmpty(c.Host, defaultDBHost)
	port := c.Port
	if port == 0 {
		port = defaultDBPort
	}

	dsn := mysql.NewConfig()
	dsn.Net = "tcp"
	dsn.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	dsn.User = firstNonEmpty(c.User, defaultDBUser)
	dsn.Passwd = firstNonEmpty(c.Password, defaultDBPassword)
	dsn.DBName = firstNonEmpty(c.Name, defaultDBName)
	dsn.ParseTime = c.ParseTime
	if loc, err := time.LoadLocation(firstNonEmpty(c.Loc, defaultDBLoc)); err == nil {
		dsn.Loc = loc
	}
	dsn.Params = map[string]string{"charset": firstNonEmpty(c.Charset, defaultDBCharset)}
	for key, value := range copyStringMap(c.Params) {
		dsn.Params[key] = value
	}
	return dsn.FormatDSN()
}

// URLValue returns a redis:// or rediss:// URL accepted by redis.ParseURL.
func (c RedisRuntimeConfig) URLValue() string {
	if u := normalizeRedisRawURL(c.URL); u != "" {
		return u
	}

	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = defaultRedisHost
	}
	port := c.Port
	if port == 0 {
		port = defaultRedisPort
	}
	db := c.DB
	if db < 0 {
		db = defaultRedisDB
	}

	scheme := strings.ToLower(strings.TrimSpace(c.Scheme))
	if scheme == "" {
		if c.TLS {
			scheme = "rediss"
		} else {
			scheme = "redis"
		}
	}
	if scheme != "redis" && scheme != "rediss" {
		scheme = "redis"
	}

	u := &neturl.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + strconv.Itoa(db),
	}
	username := strings.TrimSpace(c.Username)
	password := strings.TrimSpace(c.Password)
	if username != "" {
		if password != "" {
			u.User = neturl.UserPassword(username, password)
		} else {
			u.User = neturl.User(username)
		}
	} else if password != "" {
		u.User = neturl.UserPassword("", password)
	}

	if len(c.Params) > 0 {
		query := neturl.Values{}
		for key, value := range c.Params {
			k := strings.TrimSpace(key)
			v := strings.TrimSpace(value)
			if k != "" && v != "" {
				query.Set(k, v)
			}
		}
		if len(query) > 0 {
			u.RawQuery = query.Encode()
		}
	}

	return u.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			return t
		}
	}
	return ""
}
