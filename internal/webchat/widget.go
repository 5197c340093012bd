package webchat

import _ "embed"

// DefaultWidgetJS is the embeddable chat widget script served at /widget.js.
//
//go:embed widget.js
var DefaultWidgetJS []byte
