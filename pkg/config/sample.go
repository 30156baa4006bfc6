package config

// SampleConfig is the commented configuration written by `fixgate
// init`.
const SampleConfig = `# FIXGate server configuration

logging:
  level: INFO        # DEBUG, INFO, WARN, ERROR
  format: text       # text, json
  output: stdout     # stdout, stderr, or a file path

server:
  listen_addr: ":9878"
  # tls_cert: /etc/fixgate/server.crt
  # tls_key: /etc/fixgate/server.key
  max_connections: 10000
  shutdown_timeout: 5s

engine:
  fix_version: "4.4"           # 4.4 or 5.0
  max_sessions: 10000
  max_frame_bytes: 8192
  default_heartbeat_seconds: 30
  logon_timeout_seconds: 30
  inbound_queue_depth: 4096
  outbound_queue_depth: 4096
  resend_buffer_window: 1024
  reset_on_logon_policy: accept  # accept, ignore, never

store:
  backend: memory    # memory or sql
  audit_retention_days: 90
  database:
    type: sqlite     # sqlite or postgres
    sqlite:
      path: ""       # default: $XDG_STATE_HOME/fixgate/fixgate.db
    postgres:
      host: localhost
      port: 5432
      database: fixgate
      user: fixgate
      password: ""
      sslmode: disable

auth:
  mode: allow_all    # allow_all or static
  # credentials:
  #   - comp_id: BUYSIDE1
  #     password_hash: "$2a$10$..."   # fixgatectl hash-password
  max_failures: 3
  failure_window: 1m
  failure_cool_down: 5m

api:
  enabled: false
  port: 9879
  jwt_secret: ""     # required when enabled
  admin_user: admin
  admin_password_hash: ""

metrics:
  enabled: true

telemetry:
  enabled: false
  endpoint: localhost:4317
  insecure: true
  sample_rate: 1.0
  profiling:
    enabled: false
    endpoint: http://localhost:4040
`
