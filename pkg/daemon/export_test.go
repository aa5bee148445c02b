package daemon

var NewHTTPClient = newHTTPClient
