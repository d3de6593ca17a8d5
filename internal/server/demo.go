package server

import "net/http"

// DemoPage serves a small browser client that follows a room over SSE and
// posts through the messages endpoint.
func (h *Handler) DemoPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(demoHTML))
}

const demoHTML = `<!DOCTYPE html>
<html>
<head>
    <title>roomcast</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #content { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .webhook { color: #8a4baf; }
    </style>
</head>
<body>
    <h1>roomcast</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="room" value="general" placeholder="Room">
        <input type="text" id="author" value="guest" placeholder="Author">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="content" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="online"></div>
    <div id="messages"></div>

    <script>
        let source = null;
        const seen = new Set();
        const messagesDiv = document.getElementById('messages');
        const contentInput = document.getElementById('content');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function room() { return document.getElementById('room').value.trim(); }
        function author() { return document.getElementById('author').value.trim(); }

        function addLine(text, cls) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            if (cls) line.className = cls;
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function showMessage(msg) {
            if (seen.has(msg.id)) return;
            seen.add(msg.id);
            const when = new Date(msg.timestamp).toLocaleTimeString();
            addLine('[' + when + '] ' + msg.author + ': ' + msg.content, msg.source);
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected to #' + room() : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            contentInput.disabled = !connected;
            sendButton.disabled = !connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        async function loadHistory() {
            const res = await fetch('/api/messages?room=' + encodeURIComponent(room()));
            if (res.ok) (await res.json()).forEach(showMessage);
        }

        function connect() {
            messagesDiv.innerHTML = '';
            seen.clear();
            source = new EventSource('/api/events?room=' + encodeURIComponent(room()));
            source.onopen = function() { updateStatus(true); };
            source.onmessage = function(event) {
                const envelope = JSON.parse(event.data);
                if (envelope.type === 'message') showMessage(envelope.data);
                if (envelope.type === 'presence') {
                    document.getElementById('online').textContent = 'Online: ' + envelope.data.users.join(', ');
                }
            };
            source.onerror = function() { updateStatus(false); };
            loadHistory();
        }

        function disconnect() {
            if (source) source.close();
            source = null;
            updateStatus(false);
        }

        function toggleConnection() {
            if (source) disconnect(); else connect();
        }

        async function sendMessage() {
            const content = contentInput.value.trim();
            if (!content) return;
            const res = await fetch('/api/messages', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({ content: content, room: room(), author: author() })
            });
            if (!res.ok) {
                addLine('Error: ' + (await res.json()).error);
                return;
            }
            contentInput.value = '';
        }

        contentInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') sendMessage();
        });
    </script>
</body>
</html>`
