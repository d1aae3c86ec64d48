package config

import (
	"fmt"
	"os"
)

func Template() string {
	return meshboardTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(meshboardTemplate), 0o600)
}

const meshboardTemplate = `board_channel = "noteboard"
db_path = "meshboard.db"
http_addr = ":8080"
cors_origins = ["http://localhost:3000"]
admin_token = ""

# radio
driver = "sim"
power_probe = "vcgencmd"
port_patterns = ["/dev/ttyACM*", "/dev/ttyUSB*"]
poll_interval = "2s"
power_cooldown = "10s"
connect_attempts = 3
tx_min_spacing = "2s"

# delivery
send_interval = "10s"
ack_timeout = "30s"
ack_delay = "60s"
ack_attempts = 3
ack_spacing = "10s"
pin_reapply_delay = "5s"
legacy_followups = false

# board
max_notes = 200
max_note_show = 100
max_archived_note_show = 100
`
