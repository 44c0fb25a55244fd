package store

import "fmt"

// signalColumn binds a logical signal name to its samples column. The
// wide schema is fixed: one nullable numeric column per loggable
// signal, NULL meaning the read was missed that tick.
type signalColumn struct {
	Signal string
	Column string
}

var signalColumns = buildSignalColumns()

func buildSignalColumns() []signalColumn {
	cols := []signalColumn{
		{"ph", "ph"},
		{"do", "do_ppm"},
	}
	for i := 0; i < 10; i++ {
		name := fmt.Sprintf("biomass_%d", i)
		cols = append(cols, signalColumn{name, name})
	}
	cols = append(cols,
		signalColumn{"pwm0_time_on", "pwm0_time_on"},
		signalColumn{"pwm0_time_off", "pwm0_time_off"},
		signalColumn{"pwm0_lb", "pwm0_lb"},
		signalColumn{"pwm0_ub", "pwm0_ub"},
		signalColumn{"pwm0_setpoint", "pwm0_setpoint"},
	)
	return cols
}

// LoggableSignals returns the signal names the samples schema can hold,
// in column order. The sampling loop validates the address map against
// this set at startup.
func LoggableSignals() []string {
	out := make([]string, len(signalColumns))
	for i, sc := range signalColumns {
		out[i] = sc.Signal
	}
	return out
}

func columnFor(signal string) (string, bool) {
	for _, sc := range signalColumns {
		if sc.Signal == signal {
			return sc.Column, true
		}
	}
	return "", false
}

func signalColumnDDL(colType string) string {
	ddl := ""
	for _, sc := range signalColumns {
		ddl += fmt.Sprintf(",\n\t%s %s", sc.Column, colType)
	}
	return ddl
}

func sqliteSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS experiments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	reactor TEXT NOT NULL,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'stopped'))
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_experiments_running
	ON experiments(reactor) WHERE status = 'running'`,
		`CREATE TABLE IF NOT EXISTS samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	experiment_id INTEGER NOT NULL REFERENCES experiments(id),
	reactor TEXT NOT NULL,
	ts TEXT NOT NULL` + signalColumnDDL("REAL") + `,
	UNIQUE (experiment_id, ts)
)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_reactor_ts ON samples(reactor, ts)`,
	}
}

func postgresSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS experiments (
	id BIGSERIAL PRIMARY KEY,
	reactor TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'stopped'))
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_experiments_running
	ON experiments(reactor) WHERE status = 'running'`,
		`CREATE TABLE IF NOT EXISTS samples (
	id BIGSERIAL PRIMARY KEY,
	experiment_id BIGINT NOT NULL REFERENCES experiments(id),
	reactor TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL` + signalColumnDDL("DOUBLE PRECISION") + `,
	UNIQUE (experiment_id, ts)
)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_reactor_ts ON samples(reactor, ts)`,
	}
}
