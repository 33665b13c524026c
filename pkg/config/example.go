package config

// Example is the file written by `pyadm config generate`.
const Example = `# pyadm configuration
#
# Sections are grouped by prefix: LDAP*, ELASTIC*, PVE*.
# Without --server/--cluster the section named exactly like the prefix is
# used, otherwise the first one of that prefix in this file.
# Secrets may be stored encrypted, see 'pyadm config encrypt'.

[LDAP]
server = ldap://ldap.example.com
base_dn = dc=example,dc=com
bind_username = cn=admin,dc=example,dc=com
bind_password =
skip_tls_verify = false
use_starttls = true
timeout = 10

[LDAP_PROD]
server = ldaps://ldap-prod.example.com
base_dn = dc=prod,dc=example,dc=com
bind_username = admin@prod.example.com
bind_password =
skip_tls_verify = false
use_starttls = false
timeout = 10
# auth = kerberos
# realm = PROD.EXAMPLE.COM
# guess_bind_dn = false

[ELASTIC]
hosts = http://localhost:9200
username = elastic
password =
verify_certs = false
timeout = 30

[ELASTIC_PROD]
hosts = https://es1.example.com:9200,https://es2.example.com:9200
username = elastic
password =
verify_certs = true
ca_certs = /etc/ssl/certs/ca-certificates.crt
timeout = 30
# engine = opensearch

[PVE]
host = pve.example.com
port = 8006
user = root@pam
password =
verify_ssl = false

[PVE_PROD]
host = pve-prod.example.com
port = 8006
user = automation@pve
token_name = pyadm
token_value =
verify_ssl = true
`
