package portal

// portalHTML is the captive portal page. It talks to /scan, /connect and
// /status only; /connect is asynchronous, so the page polls /status until
// the attempt reaches a terminal outcome.
const portalHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>WiFi Setup Portal</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            min-height: 100vh;
            display: flex; align-items: center; justify-content: center;
            padding: 20px;
        }
        .container {
            background: white; border-radius: 20px;
            box-shadow: 0 20px 40px rgba(0,0,0,0.1);
            max-width: 500px; width: 100%; padding: 40px; text-align: center;
        }
        h1 { color: #333; margin-bottom: 10px; font-size: 28px; }
        .subtitle { color: #666; margin-bottom: 30px; }
        .network-list { margin: 20px 0; max-height: 300px; overflow-y: auto; }
        .network-item {
            display: flex; align-items: center; padding: 15px;
            border: 2px solid #f0f0f0; border-radius: 12px; margin-bottom: 10px;
            cursor: pointer;
        }
        .network-item.selected { border-color: #667eea; background: #f0f4ff; }
        .network-name { font-weight: bold; color: #333; text-align: left; flex-grow: 1; }
        .network-security { font-size: 12px; color: #666; }
        .form-group { margin: 20px 0; text-align: left; }
        label { display: block; margin-bottom: 8px; font-weight: 500; color: #333; }
        input[type="password"], input[type="text"] {
            width: 100%; padding: 15px; border: 2px solid #e1e5e9;
            border-radius: 12px; font-size: 16px;
        }
        .btn {
            background: linear-gradient(135deg, #667eea, #764ba2); color: white;
            border: none; padding: 15px 30px; border-radius: 12px;
            font-size: 16px; cursor: pointer; width: 100%; margin-top: 20px;
        }
        .btn:disabled { opacity: 0.6; cursor: not-allowed; }
        .status-message { padding: 15px; border-radius: 12px; margin: 20px 0; font-weight: 500; display: none; }
        .status-success { background: #d4edda; color: #155724; }
        .status-error { background: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <div class="container">
        <h1>WiFi Setup</h1>
        <p class="subtitle">Connect your device to a WiFi network</p>
        <div id="networks" class="network-list"></div>
        <div id="connectionForm" style="display: none;">
            <div class="form-group">
                <label for="selectedNetwork">Selected Network:</label>
                <input type="text" id="selectedNetwork" readonly>
            </div>
            <div class="form-group">
                <label for="password">Password:</label>
                <input type="password" id="password" placeholder="Enter WiFi password">
            </div>
            <button id="connectBtn" class="btn">Connect</button>
        </div>
        <div id="statusMessage" class="status-message"></div>
    </div>

    <script>
        var selectedNetwork = null;
        var pollTimer = null;

        window.addEventListener('load', scanNetworks);

        function scanNetworks() {
            fetch('/scan')
                .then(function(r) { return r.json(); })
                .then(function(data) {
                    if (data.success) { displayNetworks(data.networks); }
                    else { showStatus('Failed to scan networks', 'error'); }
                })
                .catch(function(err) { showStatus('Error scanning networks: ' + err, 'error'); });
        }

        function displayNetworks(networks) {
            var container = document.getElementById('networks');
            container.innerHTML = '';
            if (networks.length === 0) {
                container.innerHTML = '<p>No networks found. <a href="#" onclick="scanNetworks()">Scan again</a></p>';
                return;
            }
            networks.forEach(function(network) {
                var item = document.createElement('div');
                item.className = 'network-item';
                item.onclick = function() { selectNetwork(network, item); };
                item.innerHTML = '<div class="network-name">' + network.ssid +
                    '</div><div class="network-security">' + (network.security || 'Open') + '</div>';
                container.appendChild(item);
            });
        }

        function selectNetwork(network, element) {
            document.querySelectorAll('.network-item').forEach(function(item) {
                item.classList.remove('selected');
            });
            element.classList.add('selected');
            selectedNetwork = network;
            document.getElementById('selectedNetwork').value = network.ssid;
            document.getElementById('connectionForm').style.display = 'block';
        }

        function showStatus(message, type) {
            var div = document.getElementById('statusMessage');
            div.textContent = message;
            div.className = 'status-message status-' + type;
            div.style.display = 'block';
        }

        function pollStatus() {
            fetch('/status')
                .then(function(r) { return r.json(); })
                .then(function(status) {
                    if (status.state === 'connected') {
                        clearInterval(pollTimer);
                        showStatus('Connected to ' + status.connected_ssid + '! The portal will shut down shortly.', 'success');
                        resetButton();
                    } else if (status.last_outcome && status.last_outcome !== 'pending') {
                        clearInterval(pollTimer);
                        showStatus('Connection failed: ' + (status.last_error || status.last_outcome), 'error');
                        resetButton();
                    }
                });
        }

        function resetButton() {
            var btn = document.getElementById('connectBtn');
            btn.disabled = false;
            btn.textContent = 'Connect';
        }

        document.getElementById('connectBtn').addEventListener('click', function() {
            if (!selectedNetwork) { showStatus('Please select a network first', 'error'); return; }
            var btn = document.getElementById('connectBtn');
            btn.disabled = true;
            btn.textContent = 'Connecting...';
            fetch('/connect', {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({
                    ssid: selectedNetwork.ssid,
                    password: document.getElementById('password').value
                })
            })
            .then(function(r) { return r.json(); })
            .then(function(data) {
                if (data.success) {
                    showStatus('Connecting to ' + data.ssid + '...', 'success');
                    pollTimer = setInterval(pollStatus, 2000);
                } else {
                    showStatus(data.error || 'Connection failed', 'error');
                    resetButton();
                }
            })
            .catch(function(err) { showStatus('Connection failed: ' + err, 'error'); resetButton(); });
        });
    </script>
</body>
</html>
`
